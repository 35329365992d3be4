package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusSucceeded = "succeeded"
	TransactionStatusFailed    = "failed"
)

// Transaction is one payment attempt for a document request. ID is generated
// locally and doubles as the idempotency key sent to the provider.
//
// ActiveSlot equals RequestID while the attempt is pending or succeeded and is
// NULL once it failed; the unique index on it is what prevents two live
// attempts for the same request across instances.
type Transaction struct {
	ID                 string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	RequestID          uint            `gorm:"not null;index" json:"request_id"`
	PaymentMethodID    uint            `gorm:"not null" json:"payment_method_id"`
	Provider           string          `gorm:"type:varchar(20);not null;index:idx_transactions_provider_resource,priority:1" json:"provider"`
	ProviderResourceID string          `gorm:"type:varchar(191);not null;default:'';index:idx_transactions_provider_resource,priority:2" json:"provider_resource_id"`
	ProviderPaymentID  string          `gorm:"type:varchar(191);not null;default:''" json:"provider_payment_id"`
	CheckoutURL        string          `gorm:"type:varchar(500);not null;default:''" json:"checkout_url"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Surcharge          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"surcharge"`
	NetAmount          decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"net_amount"`
	Currency           string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status             string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ActiveSlot         *uint           `gorm:"uniqueIndex:ux_transactions_active_slot" json:"-"`
	PayerEmail         string          `gorm:"type:varchar(200);default:''" json:"-"`
	FailureReason      string          `gorm:"type:varchar(255);default:''" json:"failure_reason,omitempty"`
	SucceededAt        *time.Time      `gorm:"type:timestamp;default:null" json:"succeeded_at,omitempty"`
	FailedAt           *time.Time      `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the attempt reached a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusSucceeded || t.Status == TransactionStatusFailed
}
