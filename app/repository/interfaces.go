package repository

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// DocumentTypeRepository defines the interface for document type lookups
type DocumentTypeRepository interface {
	Create(documentType *models.DocumentType) error
	GetByID(id uint) (*models.DocumentType, error)
	GetByCode(code string) (*models.DocumentType, error)
	ListActive() ([]models.DocumentType, error)
}

// PaymentMethodRepository defines the interface for payment method lookups
type PaymentMethodRepository interface {
	GetByID(id uint) (*models.PaymentMethod, error)
	ListActive() ([]models.PaymentMethod, error)
}

// FeeScheduleRepository defines the interface for the versioned fee schedule.
// Entries are never deleted; a fee change deactivates the current entry and
// appends a new active one.
type FeeScheduleRepository interface {
	GetActive(documentTypeID uint) (*models.FeeScheduleEntry, error)
	ListActive() ([]FeeListing, error)
	History(documentTypeID uint) ([]models.FeeScheduleEntry, error)
	ReplaceActive(documentTypeID uint, amount decimal.Decimal, createdBy string, effectiveAt time.Time) (*models.FeeScheduleEntry, bool, error)
}

// StatsRepository defines the interface for the daily settlement counters
type StatsRepository interface {
	AddCounts(day string, counts map[string]int64) error
	GetRange(fromDay, toDay string) ([]models.SettlementStat, error)
}

// FeeListing pairs an active document type with its active fee entry.
// Entry is nil for regulated types and for types without a configured fee.
type FeeListing struct {
	DocumentType models.DocumentType      `json:"document_type"`
	Entry        *models.FeeScheduleEntry `json:"active_fee"`
}

// Repositories struct holds all repository instances
type Repositories struct {
	DocumentType  DocumentTypeRepository
	PaymentMethod PaymentMethodRepository
	FeeSchedule   FeeScheduleRepository
	Stats         StatsRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DocumentType:  NewDocumentTypeRepository(db),
		PaymentMethod: NewPaymentMethodRepository(db),
		FeeSchedule:   NewFeeScheduleRepository(db),
		Stats:         NewStatsRepository(db),
	}
}
