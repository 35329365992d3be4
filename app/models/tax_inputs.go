package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestTaxInputs stores the financial attributes of a regulated request.
// The row is frozen (LockedAt set) once the request is paid.
type RequestTaxInputs struct {
	ID                    uint            `gorm:"primaryKey" json:"id"`
	RequestID             uint            `gorm:"not null;uniqueIndex" json:"request_id"`
	Income                decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"income"`
	RealPropertyValue     decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"real_property_value"`
	PersonalPropertyValue decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"personal_property_value"`
	BusinessReceipts      decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"business_receipts"`
	LockedAt              *time.Time      `gorm:"type:timestamp;default:null" json:"locked_at,omitempty"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName keeps the table name short.
func (RequestTaxInputs) TableName() string {
	return "tax_inputs"
}

// IsLocked reports whether the inputs may no longer change.
func (t *RequestTaxInputs) IsLocked() bool {
	return t.LockedAt != nil
}
