package repository

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// feeScheduleRepository implements the FeeScheduleRepository interface
type feeScheduleRepository struct {
	db *gorm.DB
}

// NewFeeScheduleRepository creates a new fee schedule repository instance
func NewFeeScheduleRepository(db *gorm.DB) FeeScheduleRepository {
	return &feeScheduleRepository{db: db}
}

// GetActive retrieves the single active entry of a document type
func (r *feeScheduleRepository) GetActive(documentTypeID uint) (*models.FeeScheduleEntry, error) {
	var entry models.FeeScheduleEntry
	err := r.db.Where("document_type_id = ? AND active = ?", documentTypeID, true).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListActive retrieves all active document types together with their active fee
func (r *feeScheduleRepository) ListActive() ([]FeeListing, error) {
	var documentTypes []models.DocumentType
	if err := r.db.Where("active = ?", true).Order("name ASC").Find(&documentTypes).Error; err != nil {
		return nil, err
	}
	if len(documentTypes) == 0 {
		return []FeeListing{}, nil
	}

	ids := make([]uint, 0, len(documentTypes))
	for _, dt := range documentTypes {
		ids = append(ids, dt.ID)
	}

	var entries []models.FeeScheduleEntry
	if err := r.db.Where("document_type_id IN ? AND active = ?", ids, true).Find(&entries).Error; err != nil {
		return nil, err
	}
	byType := make(map[uint]*models.FeeScheduleEntry, len(entries))
	for i := range entries {
		byType[entries[i].DocumentTypeID] = &entries[i]
	}

	listings := make([]FeeListing, 0, len(documentTypes))
	for _, dt := range documentTypes {
		listings = append(listings, FeeListing{DocumentType: dt, Entry: byType[dt.ID]})
	}
	return listings, nil
}

// History retrieves every entry of a document type, newest first
func (r *feeScheduleRepository) History(documentTypeID uint) ([]models.FeeScheduleEntry, error) {
	var entries []models.FeeScheduleEntry
	err := r.db.Where("document_type_id = ?", documentTypeID).
		Order("effective_date DESC").Order("id DESC").Find(&entries).Error
	return entries, err
}

// ReplaceActive makes amount the active fee of a document type. The document
// type row is locked so concurrent updates of the same type serialize; the
// unique active_slot rejects anything that slips past. When amount equals
// the current fee nothing is written and changed is false.
func (r *feeScheduleRepository) ReplaceActive(documentTypeID uint, amount decimal.Decimal, createdBy string, effectiveAt time.Time) (*models.FeeScheduleEntry, bool, error) {
	var result *models.FeeScheduleEntry
	changed := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var documentType models.DocumentType
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&documentType, documentTypeID).Error; err != nil {
			return err
		}

		var current models.FeeScheduleEntry
		err := tx.Where("document_type_id = ? AND active = ?", documentTypeID, true).First(&current).Error
		hasCurrent := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if hasCurrent && current.Amount.Equal(amount) {
			result = &current
			return nil
		}

		if hasCurrent {
			if err := tx.Model(&models.FeeScheduleEntry{}).Where("id = ?", current.ID).
				Updates(map[string]interface{}{"active": false, "active_slot": nil}).Error; err != nil {
				return err
			}
		}

		slot := documentTypeID
		entry := &models.FeeScheduleEntry{
			DocumentTypeID: documentTypeID,
			Amount:         amount,
			EffectiveDate:  effectiveAt,
			Active:         true,
			ActiveSlot:     &slot,
			CreatedBy:      createdBy,
		}
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		result = entry
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, changed, nil
}

// statsRepository implements the StatsRepository interface
type statsRepository struct {
	db *gorm.DB
}

// NewStatsRepository creates a new settlement stats repository instance
func NewStatsRepository(db *gorm.DB) StatsRepository {
	return &statsRepository{db: db}
}

// AddCounts adds the given increments to the counters of a day
func (r *statsRepository) AddCounts(day string, counts map[string]int64) error {
	rows := make([]models.SettlementStat, 0, len(counts))
	for metric, count := range counts {
		if count == 0 {
			continue
		}
		rows = append(rows, models.SettlementStat{Day: day, Metric: metric, Count: count})
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}, {Name: "metric"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("`count` + VALUES(`count`)")}),
	}).Create(&rows).Error
}

// GetRange retrieves counters for the inclusive day range (YYYY-MM-DD)
func (r *statsRepository) GetRange(fromDay, toDay string) ([]models.SettlementStat, error) {
	var stats []models.SettlementStat
	err := r.db.Where("day >= ? AND day <= ?", fromDay, toDay).
		Order("day ASC").Order("metric ASC").Find(&stats).Error
	return stats, err
}
