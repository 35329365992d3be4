package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Workflow stages of a document request.
const (
	RequestStatusSubmitted        = "submitted"
	RequestStatusApproved         = "approved"
	RequestStatusPaymentConfirmed = "payment_confirmed"
	RequestStatusReleased         = "released"
	RequestStatusRejected         = "rejected"
)

// Payment states of a document request.
const (
	PaymentStatusNone    = "none"
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// DocumentRequest is an applicant's request for a document. TotalFee and
// PaymentStatus are owned by the settlement engine.
type DocumentRequest struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ReferenceNo    string          `gorm:"type:varchar(40);not null;uniqueIndex" json:"reference_no"`
	DocumentTypeID uint            `gorm:"not null;index" json:"document_type_id"`
	DocumentType   DocumentType    `gorm:"foreignKey:DocumentTypeID" json:"document_type,omitempty"`
	ApplicantEmail string          `gorm:"type:varchar(200);default:''" json:"applicant_email"`
	Status         string          `gorm:"type:varchar(32);not null;default:'submitted';index" json:"status"`
	PaymentStatus  string          `gorm:"type:varchar(16);not null;default:'none';index" json:"payment_status"`
	TotalFee       decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"total_fee"`
	PaidAt         *time.Time      `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// stageRank orders workflow stages so that settlement never moves a request backwards.
func stageRank(status string) int {
	switch status {
	case RequestStatusSubmitted:
		return 0
	case RequestStatusApproved:
		return 1
	case RequestStatusPaymentConfirmed:
		return 2
	case RequestStatusReleased:
		return 3
	default:
		return -1
	}
}

// IsPastPayment reports whether the request already advanced beyond the payment stage.
func (r *DocumentRequest) IsPastPayment() bool {
	return stageRank(r.Status) >= stageRank(RequestStatusPaymentConfirmed)
}
