package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeScheduleEntry is one version of a document type's flat fee. ActiveSlot
// holds the document type id while the entry is active and NULL otherwise;
// its unique index allows only one active entry per type.
type FeeScheduleEntry struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	DocumentTypeID uint            `gorm:"not null;index:idx_fee_schedule_type_effective,priority:1" json:"document_type_id"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	EffectiveDate  time.Time       `gorm:"type:timestamp;not null;index:idx_fee_schedule_type_effective,priority:2" json:"effective_date"`
	Active         bool            `gorm:"default:false;index" json:"active"`
	ActiveSlot     *uint           `gorm:"uniqueIndex:ux_fee_schedule_active_slot" json:"-"`
	CreatedBy      string          `gorm:"type:varchar(100);default:''" json:"created_by"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
