package settlement

import (
	"time"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// OutcomeChange is a terminal result to apply to one transaction, coming from
// either a webhook or reconciliation.
type OutcomeChange struct {
	Outcome            Outcome
	ProviderResourceID string
	ProviderPaymentID  string
	Reason             string
	At                 time.Time
}

// TransitionResult reports the state after ApplyOutcome.
type TransitionResult struct {
	Transaction     models.Transaction
	Request         models.DocumentRequest
	Changed         bool
	RequestAdvanced bool
	Superseded      string
	DoublePayment   bool
}

type transitionPlan struct {
	txChanged       bool
	reqChanged      bool
	siblingChanged  bool
	lockTaxInputs   bool
	requestAdvanced bool
	doublePayment   bool
}

// planTransition mutates tx, req and sibling in place and reports which rows
// must be written. sibling is another transaction currently holding the
// request's active slot, if any.
//
// Succeeded is absorbing: nothing moves a succeeded transaction or a paid
// request backwards.
func planTransition(tx *models.Transaction, req *models.DocumentRequest, sibling *models.Transaction, ch OutcomeChange) transitionPlan {
	var plan transitionPlan
	at := ch.At
	if at.IsZero() {
		at = time.Now()
	}

	if ch.ProviderResourceID != "" && tx.ProviderResourceID == "" {
		tx.ProviderResourceID = ch.ProviderResourceID
		plan.txChanged = true
	}
	if ch.ProviderPaymentID != "" && tx.ProviderPaymentID == "" {
		tx.ProviderPaymentID = ch.ProviderPaymentID
		plan.txChanged = true
	}

	switch ch.Outcome {
	case OutcomeSucceeded:
		if tx.Status != models.TransactionStatusSucceeded {
			tx.Status = models.TransactionStatusSucceeded
			tx.SucceededAt = &at
			tx.FailureReason = ""
			plan.txChanged = true

			if sibling != nil && sibling.ID != tx.ID {
				if sibling.Status == models.TransactionStatusSucceeded {
					// Both attempts were paid; keep the earlier one in the slot.
					plan.doublePayment = true
					tx.ActiveSlot = nil
				} else {
					sibling.Status = models.TransactionStatusFailed
					sibling.ActiveSlot = nil
					sibling.FailedAt = &at
					sibling.FailureReason = "superseded by " + tx.ID
					plan.siblingChanged = true
					tx.ActiveSlot = slotFor(req.ID)
				}
			} else {
				tx.ActiveSlot = slotFor(req.ID)
			}
		}

		if req.PaymentStatus != models.PaymentStatusPaid {
			req.PaymentStatus = models.PaymentStatusPaid
			req.PaidAt = &at
			plan.reqChanged = true
			plan.lockTaxInputs = true
		}
		if req.Status == models.RequestStatusApproved {
			req.Status = models.RequestStatusPaymentConfirmed
			plan.reqChanged = true
			plan.requestAdvanced = true
		}

	case OutcomeFailed:
		if tx.Status != models.TransactionStatusPending {
			return plan
		}
		tx.Status = models.TransactionStatusFailed
		tx.ActiveSlot = nil
		tx.FailedAt = &at
		tx.FailureReason = truncate(ch.Reason, 255)
		plan.txChanged = true

		if req.PaymentStatus != models.PaymentStatusPaid && (sibling == nil || sibling.ID == tx.ID) {
			req.PaymentStatus = models.PaymentStatusFailed
			plan.reqChanged = true
		}
	}
	return plan
}

func slotFor(requestID uint) *uint {
	id := requestID
	return &id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
