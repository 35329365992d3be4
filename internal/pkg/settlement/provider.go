package settlement

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is the external payment provider. Implementations must honour
// ctx deadlines; the service bounds every call with Config.ProviderTimeout.
type Provider interface {
	Name() string
	CreateLink(ctx context.Context, req LinkRequest) (*Link, error)
	ListPayments(ctx context.Context, since, until time.Time) ([]ProviderPayment, error)
}

// Notifier dispatches settlement events to downstream consumers.
type Notifier interface {
	PublishSettlement(ctx context.Context, ev SettlementEvent) error
}

// MetricsRecorder counts settlement activity.
type MetricsRecorder interface {
	Incr(metric string)
}

// ReportArchiver stores finished reconciliation reports out of band.
type ReportArchiver interface {
	ArchiveReconcileReport(ctx context.Context, report *ReconcileReport) error
}

// FeeSource resolves the active flat fee for non-regulated document types.
type FeeSource interface {
	ActiveAmount(ctx context.Context, documentTypeID uint) (decimal.Decimal, error)
}

// Metric names recorded by the service.
const (
	MetricWebhookReceived      = "webhook_received"
	MetricWebhookDuplicate     = "webhook_duplicate"
	MetricWebhookFailed        = "webhook_failed"
	MetricPaymentInitiated     = "payment_initiated"
	MetricPaymentSucceeded     = "payment_succeeded"
	MetricPaymentFailed        = "payment_failed"
	MetricReconcileDiscrepancy = "reconcile_discrepancy"
)

type noopNotifier struct{}

func (noopNotifier) PublishSettlement(context.Context, SettlementEvent) error { return nil }

type noopMetrics struct{}

func (noopMetrics) Incr(string) {}
