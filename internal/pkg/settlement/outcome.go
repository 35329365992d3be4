package settlement

import "strings"

// Outcome is the closed set of settlement results a callback or provider
// record can express.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// NormalizeEventType is the single place where provider event spellings are
// mapped onto Outcome.
func NormalizeEventType(eventType string) Outcome {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "payment.succeeded", "payment.paid", "link.succeeded", "link.payment.paid", "checkout_session.payment.paid":
		return OutcomeSucceeded
	case "payment.failed", "link.failed", "link.payment.failed", "payment.expired", "link.expired":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}

// NormalizePaymentStatus maps provider payment statuses seen during
// reconciliation. Non-terminal statuses map to OutcomeIgnored.
func NormalizePaymentStatus(status string) Outcome {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "succeeded", "success":
		return OutcomeSucceeded
	case "failed", "expired", "cancelled", "canceled", "voided":
		return OutcomeFailed
	default:
		return OutcomeIgnored
	}
}
