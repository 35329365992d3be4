package settlement

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/database"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL-dependent test: TEST_DB_DSN not set")
	}
	db, err := database.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

// seedRequest creates an approved request of a fresh document type and
// removes everything hanging off it when the test ends.
func seedRequest(t *testing.T, db *gorm.DB) *models.DocumentRequest {
	t.Helper()

	suffix := uuid.NewString()[:8]
	dt := &models.DocumentType{Code: "test_" + suffix, Name: "Test Clearance", Active: true}
	require.NoError(t, db.Create(dt).Error)

	req := &models.DocumentRequest{
		ReferenceNo:    "TEST-" + suffix,
		DocumentTypeID: dt.ID,
		Status:         models.RequestStatusApproved,
		PaymentStatus:  models.PaymentStatusNone,
		TotalFee:       decimal.RequireFromString("100.00"),
	}
	require.NoError(t, db.Omit(clause.Associations).Create(req).Error)

	t.Cleanup(func() {
		db.Where("request_id = ?", req.ID).Delete(&models.RequestTaxInputs{})
		db.Where("request_id = ?", req.ID).Delete(&models.Transaction{})
		db.Delete(&models.DocumentRequest{}, req.ID)
		db.Delete(&models.DocumentType{}, dt.ID)
	})
	return req
}

func newTestTransaction(requestID uint) *models.Transaction {
	return &models.Transaction{
		ID:              uuid.NewString(),
		RequestID:       requestID,
		PaymentMethodID: 1,
		Provider:        "paymongo",
		Amount:          decimal.RequireFromString("100.00"),
		NetAmount:       decimal.RequireFromString("100.00"),
		Currency:        "PHP",
	}
}

func TestGormRepository_ConcurrentReserveTakesOneSlot(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	req := seedRequest(t, db)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.ReserveTransaction(context.Background(), newTestTransaction(req.ID))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, ErrSlotTaken)
	}
	assert.Equal(t, 1, won)

	var live int64
	require.NoError(t, db.Model(&models.Transaction{}).Where("active_slot = ?", req.ID).Count(&live).Error)
	assert.Equal(t, int64(1), live)

	var stored models.DocumentRequest
	require.NoError(t, db.First(&stored, req.ID).Error)
	assert.Equal(t, models.PaymentStatusPending, stored.PaymentStatus)
}

func TestGormRepository_ReleaseFreesSlot(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)

	first := newTestTransaction(req.ID)
	require.NoError(t, repo.ReserveTransaction(ctx, first))
	require.NoError(t, repo.ReleaseReservation(ctx, first.ID, "provider unavailable", models.PaymentStatusNone))

	released, err := repo.GetTransaction(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, released.Status)
	assert.Nil(t, released.ActiveSlot)

	require.NoError(t, repo.ReserveTransaction(ctx, newTestTransaction(req.ID)), "a released slot can be claimed again")
}

func TestGormRepository_ReplayedEventIsNotCreatedTwice(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	eventID := "evt_" + uuid.NewString()
	t.Cleanup(func() {
		db.Where("provider_event_id = ?", eventID).Delete(&models.WebhookEvent{})
	})
	newEvent := func() *models.WebhookEvent {
		return &models.WebhookEvent{
			Provider:        "paymongo",
			ProviderEventID: eventID,
			EventType:       "link.payment.paid",
			Payload:         []byte(`{"eventId":"` + eventID + `"}`),
			SignatureValid:  true,
		}
	}

	created, first, err := repo.CreateWebhookEventIfNotExists(ctx, newEvent())
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, repo.MarkWebhookProcessed(ctx, first.ID))

	created, replay, err := repo.CreateWebhookEventIfNotExists(ctx, newEvent())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, replay.ID)
	assert.True(t, replay.Processed)

	var count int64
	require.NoError(t, db.Model(&models.WebhookEvent{}).Where("provider_event_id = ?", eventID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormRepository_LateSuccessSupersedesPendingSibling(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	req := seedRequest(t, db)

	late := newTestTransaction(req.ID)
	require.NoError(t, repo.ReserveTransaction(ctx, late))
	require.NoError(t, repo.ReleaseReservation(ctx, late.ID, "checkout expired", models.PaymentStatusNone))

	retry := newTestTransaction(req.ID)
	require.NoError(t, repo.ReserveTransaction(ctx, retry))

	res, err := repo.ApplyOutcome(ctx, late.ID, OutcomeChange{
		Outcome:            OutcomeSucceeded,
		ProviderResourceID: "link_" + late.ID[:8],
		Reason:             "provider reported link.payment.paid",
		At:                 time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, retry.ID, res.Superseded)
	assert.True(t, res.Changed)

	paid, err := repo.GetTransaction(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusSucceeded, paid.Status)
	require.NotNil(t, paid.ActiveSlot)
	assert.Equal(t, req.ID, *paid.ActiveSlot)

	superseded, err := repo.GetTransaction(ctx, retry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusFailed, superseded.Status)
	assert.Nil(t, superseded.ActiveSlot)

	stored, err := repo.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)
	assert.Equal(t, models.RequestStatusPaymentConfirmed, stored.Status)
}
