package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// InitiateInput is the caller's request to start paying for a document request.
type InitiateInput struct {
	RequestID       uint   `json:"requestId" validate:"required,gt=0"`
	PaymentMethodID uint   `json:"paymentMethodId" validate:"required,gt=0"`
	PayerEmail      string `json:"payerEmail" validate:"omitempty,email,max=200"`
}

// InitiateResult is returned to the caller. It never contains provider secrets.
type InitiateResult struct {
	TransactionID     string          `json:"transactionId"`
	CheckoutReference string          `json:"checkoutReference"`
	PayableAmount     decimal.Decimal `json:"payableAmount"`
	Surcharge         decimal.Decimal `json:"surcharge"`
	NetAmount         decimal.Decimal `json:"netAmount"`
	Currency          string          `json:"currency"`
	Status            string          `json:"status"`
	Reused            bool            `json:"-"`
}

// StatusResult answers the status query for a transaction.
type StatusResult struct {
	Transaction   models.Transaction `json:"transaction"`
	RequestStatus string             `json:"requestStatus"`
	PaymentStatus string             `json:"paymentStatus"`
}

// WebhookInput is the raw callback as received over HTTP.
type WebhookInput struct {
	Payload   []byte
	Signature string
}

// WebhookResult describes what happened to a verified callback.
type WebhookResult struct {
	EventID         string
	Outcome         Outcome
	Duplicate       bool
	Ignored         bool
	TransactionID   string
	Changed         bool
	ProcessingError error
}

// LinkRequest asks the provider for a payable checkout link.
type LinkRequest struct {
	TransactionID string
	RequestID     uint
	ReferenceNo   string
	AmountMinor   int64
	Currency      string
	Description   string
	PayerEmail    string
}

// Link is the provider's answer to LinkRequest.
type Link struct {
	ID          string
	CheckoutURL string
	Status      string
}

// ProviderPayment is the provider-side record pulled during reconciliation.
type ProviderPayment struct {
	ID            string
	ResourceID    string
	TransactionID string
	Status        string
	AmountMinor   int64
	Currency      string
	UpdatedAt     time.Time
}

// SettlementEvent is published after a transaction changes state.
type SettlementEvent struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	RequestID     uint            `json:"request_id"`
	ReferenceNo   string          `json:"reference_no"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	RequestStatus string          `json:"request_status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ApplicantMail string          `json:"applicant_email,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// ReconcileReport summarises one reconciliation run.
type ReconcileReport struct {
	RunID         string                             `json:"run_id"`
	StartedAt     time.Time                          `json:"started_at"`
	FinishedAt    time.Time                          `json:"finished_at"`
	WindowStart   time.Time                          `json:"window_start"`
	WindowEnd     time.Time                          `json:"window_end"`
	Checked       int                                `json:"checked"`
	Corrected     int                                `json:"corrected"`
	Attached      int                                `json:"attached"`
	StaleReleased int                                `json:"stale_released"`
	Discrepancies []models.ReconciliationDiscrepancy `json:"discrepancies"`
}
