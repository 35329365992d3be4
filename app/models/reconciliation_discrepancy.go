package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DiscrepancyMissingLocal   = "missing_local"
	DiscrepancyStateConflict  = "state_conflict"
	DiscrepancyAmountMismatch = "amount_mismatch"
)

// ReconciliationDiscrepancy is a provider payment that reconciliation could
// not bring in line with the local ledger automatically.
type ReconciliationDiscrepancy struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	RunID              string           `gorm:"type:varchar(36);not null;index" json:"run_id"`
	Kind               string           `gorm:"type:varchar(32);not null;index:ux_discrepancies_payment_kind,unique,priority:2" json:"kind"`
	ProviderPaymentID  string           `gorm:"type:varchar(191);not null;index:ux_discrepancies_payment_kind,unique,priority:1" json:"provider_payment_id"`
	ProviderResourceID string           `gorm:"type:varchar(191);default:''" json:"provider_resource_id"`
	TransactionID      *string          `gorm:"type:varchar(36);default:null;index" json:"transaction_id,omitempty"`
	ProviderStatus     string           `gorm:"type:varchar(32);default:''" json:"provider_status"`
	LocalStatus        string           `gorm:"type:varchar(32);default:''" json:"local_status"`
	ProviderAmount     decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0" json:"provider_amount"`
	LocalAmount        *decimal.Decimal `gorm:"type:decimal(12,2);default:null" json:"local_amount,omitempty"`
	Detail             string           `gorm:"type:varchar(500);default:''" json:"detail"`
	Resolved           bool             `gorm:"default:false;index" json:"resolved"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
}
