package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// ErrSlotTaken is returned by ReserveTransaction when another live attempt
// already holds the request's active slot.
var ErrSlotTaken = errors.New("request already has a live transaction")

// ErrTaxInputsLocked is returned by SaveTaxInputs once the request is paid.
var ErrTaxInputsLocked = errors.New("tax inputs are locked")

// ErrPaymentInProgress is returned by SaveTaxInputs while a checkout is pending.
var ErrPaymentInProgress = errors.New("a payment is in progress")

// Repository provides DB operations used by the settlement service.
type Repository interface {
	GetRequest(ctx context.Context, id uint) (*models.DocumentRequest, error)
	GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error)
	GetTaxInputs(ctx context.Context, requestID uint) (*models.RequestTaxInputs, error)
	CorrectTotalFee(ctx context.Context, requestID uint, fee decimal.Decimal) error
	SaveTaxInputs(ctx context.Context, inputs *models.RequestTaxInputs, totalFee decimal.Decimal) error

	FindLiveTransaction(ctx context.Context, requestID uint) (*models.Transaction, error)
	ReserveTransaction(ctx context.Context, tx *models.Transaction) error
	AttachProviderLink(ctx context.Context, txID, resourceID, checkoutURL string) error
	ReleaseReservation(ctx context.Context, txID, reason, restorePaymentStatus string) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	FindTransactionByProviderResource(ctx context.Context, provider, resourceID string) (*models.Transaction, error)
	ApplyOutcome(ctx context.Context, txID string, ch OutcomeChange) (*TransitionResult, error)
	ListStaleReservations(ctx context.Context, olderThan time.Time) ([]models.Transaction, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint) error
	MarkWebhookFailed(ctx context.Context, id uint, processingError string) error
	ListUnprocessedWebhookEvents(ctx context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error)

	SaveDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) (bool, error)
	ListDiscrepancies(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a settlement repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetRequest(ctx context.Context, id uint) (*models.DocumentRequest, error) {
	var req models.DocumentRequest
	if err := r.db.WithContext(ctx).Preload("DocumentType").First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *gormRepository) GetPaymentMethod(ctx context.Context, id uint) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *gormRepository) GetTaxInputs(ctx context.Context, requestID uint) (*models.RequestTaxInputs, error) {
	var in models.RequestTaxInputs
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&in).Error; err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *gormRepository) CorrectTotalFee(ctx context.Context, requestID uint, fee decimal.Decimal) error {
	return r.db.WithContext(ctx).Model(&models.DocumentRequest{}).
		Where("id = ? AND payment_status <> ?", requestID, models.PaymentStatusPaid).
		Update("total_fee", fee).Error
}

// SaveTaxInputs upserts the inputs of a regulated request and stores the
// recomputed total_fee. Paid requests and locked rows are rejected.
func (r *gormRepository) SaveTaxInputs(ctx context.Context, inputs *models.RequestTaxInputs, totalFee decimal.Decimal) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var req models.DocumentRequest
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, inputs.RequestID).Error; err != nil {
			return err
		}
		switch req.PaymentStatus {
		case models.PaymentStatusPaid:
			return ErrTaxInputsLocked
		case models.PaymentStatusPending:
			return ErrPaymentInProgress
		}

		var existing models.RequestTaxInputs
		err := db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("request_id = ?", inputs.RequestID).First(&existing).Error
		switch {
		case err == nil:
			if existing.IsLocked() {
				return ErrTaxInputsLocked
			}
			inputs.ID = existing.ID
			inputs.CreatedAt = existing.CreatedAt
			if err := db.Model(&existing).Updates(map[string]interface{}{
				"income":                  inputs.Income,
				"real_property_value":     inputs.RealPropertyValue,
				"personal_property_value": inputs.PersonalPropertyValue,
				"business_receipts":       inputs.BusinessReceipts,
			}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := db.Create(inputs).Error; err != nil {
				return err
			}
		default:
			return err
		}

		return db.Model(&models.DocumentRequest{}).Where("id = ?", req.ID).Update("total_fee", totalFee).Error
	})
}

func (r *gormRepository) FindLiveTransaction(ctx context.Context, requestID uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Where("active_slot = ?", requestID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ReserveTransaction inserts a pending transaction holding the request's
// active slot and marks the request pending in the same DB transaction.
func (r *gormRepository) ReserveTransaction(ctx context.Context, tx *models.Transaction) error {
	tx.Status = models.TransactionStatusPending
	tx.ActiveSlot = slotFor(tx.RequestID)
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Create(tx).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrSlotTaken
			}
			return err
		}
		return db.Model(&models.DocumentRequest{}).
			Where("id = ? AND payment_status <> ?", tx.RequestID, models.PaymentStatusPaid).
			Update("payment_status", models.PaymentStatusPending).Error
	})
}

func (r *gormRepository) AttachProviderLink(ctx context.Context, txID, resourceID, checkoutURL string) error {
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var tx models.Transaction
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&tx, "id = ?", txID).Error; err != nil {
			return err
		}
		updates := map[string]interface{}{"checkout_url": checkoutURL}
		if tx.ProviderResourceID == "" {
			updates["provider_resource_id"] = resourceID
		}
		return db.Model(&models.Transaction{}).Where("id = ?", txID).Updates(updates).Error
	})
}

// ReleaseReservation fails a pending transaction, frees the slot and puts
// the request's payment_status back to restorePaymentStatus.
func (r *gormRepository) ReleaseReservation(ctx context.Context, txID, reason, restorePaymentStatus string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var tx models.Transaction
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&tx, "id = ?", txID).Error; err != nil {
			return err
		}
		if tx.Status != models.TransactionStatusPending {
			return nil
		}
		if err := db.Model(&models.Transaction{}).Where("id = ?", txID).Updates(map[string]interface{}{
			"status":         models.TransactionStatusFailed,
			"active_slot":    nil,
			"failed_at":      &now,
			"failure_reason": truncate(reason, 255),
		}).Error; err != nil {
			return err
		}
		return db.Model(&models.DocumentRequest{}).
			Where("id = ? AND payment_status = ?", tx.RequestID, models.PaymentStatusPending).
			Update("payment_status", restorePaymentStatus).Error
	})
}

func (r *gormRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) FindTransactionByProviderResource(ctx context.Context, provider, resourceID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_resource_id = ?", provider, resourceID).
		Order("created_at DESC").
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) ApplyOutcome(ctx context.Context, txID string, ch OutcomeChange) (*TransitionResult, error) {
	var result TransitionResult
	err := r.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		locking := clause.Locking{Strength: "UPDATE"}

		var tx models.Transaction
		if err := db.Clauses(locking).First(&tx, "id = ?", txID).Error; err != nil {
			return err
		}
		var req models.DocumentRequest
		if err := db.Clauses(locking).First(&req, tx.RequestID).Error; err != nil {
			return err
		}

		var sibling *models.Transaction
		var other models.Transaction
		err := db.Clauses(locking).Where("active_slot = ? AND id <> ?", req.ID, tx.ID).First(&other).Error
		switch {
		case err == nil:
			sibling = &other
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		plan := planTransition(&tx, &req, sibling, ch)

		// Release the sibling's slot before tx claims it.
		if plan.siblingChanged {
			if err := db.Save(sibling).Error; err != nil {
				return err
			}
			result.Superseded = sibling.ID
		}
		if plan.txChanged {
			if err := db.Save(&tx).Error; err != nil {
				return err
			}
		}
		if plan.reqChanged {
			if err := db.Model(&models.DocumentRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
				"status":         req.Status,
				"payment_status": req.PaymentStatus,
				"paid_at":        req.PaidAt,
			}).Error; err != nil {
				return err
			}
		}
		if plan.lockTaxInputs {
			if err := db.Model(&models.RequestTaxInputs{}).
				Where("request_id = ? AND locked_at IS NULL", req.ID).
				Update("locked_at", req.PaidAt).Error; err != nil {
				return err
			}
		}

		result.Transaction = tx
		result.Request = req
		result.Changed = plan.txChanged || plan.reqChanged
		result.RequestAdvanced = plan.requestAdvanced
		result.DoublePayment = plan.doublePayment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *gormRepository) ListStaleReservations(ctx context.Context, olderThan time.Time) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND provider_resource_id = '' AND created_at < ?", models.TransactionStatusPending, olderThan).
		Limit(500).
		Find(&txs).Error
	return txs, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed":        true,
		"processed_at":     &now,
		"processing_error": "",
		"attempts":         gorm.Expr("attempts + 1"),
	}).Error
}

func (r *gormRepository) MarkWebhookFailed(ctx context.Context, id uint, processingError string) error {
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processing_error": processingError,
		"attempts":         gorm.Expr("attempts + 1"),
	}).Error
}

func (r *gormRepository) ListUnprocessedWebhookEvents(ctx context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND attempts < ?", false, maxAttempts).
		Order("received_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) SaveDiscrepancy(ctx context.Context, d *models.ReconciliationDiscrepancy) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
			{Name: "kind"},
		},
		DoNothing: true,
	}).Create(d)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) ListDiscrepancies(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error) {
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	var out []models.ReconciliationDiscrepancy
	err := q.Find(&out).Error
	return out, err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// MySQL error 1062 when TranslateError is not enabled.
	return strings.Contains(err.Error(), "Duplicate entry") || strings.Contains(err.Error(), "1062")
}
