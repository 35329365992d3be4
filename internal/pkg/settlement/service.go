// Package settlement runs the payment lifecycle of document requests:
// initiating a provider checkout, applying provider callbacks and
// reconciling the local ledger against the provider.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// Service is the settlement engine. All collaborators are injected.
type Service struct {
	cfg      Config
	repo     Repository
	provider Provider
	fees     FeeSource
	notifier Notifier
	metrics  MetricsRecorder
	archiver ReportArchiver
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier sets where settlement events are published.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the counter sink.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithArchiver enables archiving of reconciliation reports.
func WithArchiver(a ReportArchiver) Option {
	return func(s *Service) {
		s.archiver = a
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the transaction id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService creates a settlement service from injected collaborators.
func NewService(cfg Config, repo Repository, provider Provider, fees FeeSource, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = def.ProviderTimeout
	}
	if cfg.WebhookMaxAttempts <= 0 {
		cfg.WebhookMaxAttempts = def.WebhookMaxAttempts
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = def.ReservationTTL
	}
	if cfg.FeeEpsilon.IsZero() {
		cfg.FeeEpsilon = def.FeeEpsilon
	}
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}

	s := &Service{
		cfg:      cfg,
		repo:     repo,
		provider: provider,
		fees:     fees,
		notifier: noopNotifier{},
		metrics:  noopMetrics{},
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a settlement service backed by GORM.
func NewServiceFromDB(cfg Config, db *gorm.DB, provider Provider, fees FeeSource, opts ...Option) *Service {
	return NewService(cfg, NewRepository(db), provider, fees, opts...)
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) providerName() string {
	if s.provider != nil && s.provider.Name() != "" {
		return strings.ToLower(s.provider.Name())
	}
	return s.cfg.Provider
}

// Status returns a transaction together with its request's payment state.
func (s *Service) Status(ctx context.Context, transactionID string) (*StatusResult, error) {
	id := strings.TrimSpace(transactionID)
	if _, err := uuid.Parse(id); err != nil {
		return nil, validationError("transaction id must be a UUID")
	}
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, lookupError("transaction", err)
	}
	req, err := s.repo.GetRequest(ctx, tx.RequestID)
	if err != nil {
		return nil, lookupError("document request", err)
	}
	return &StatusResult{
		Transaction:   *tx,
		RequestStatus: req.Status,
		PaymentStatus: req.PaymentStatus,
	}, nil
}

// ListDiscrepancies returns reconciliation findings, newest first.
func (s *Service) ListDiscrepancies(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListDiscrepancies(ctx, unresolvedOnly, limit)
}

// afterTransition records metrics and publishes the settlement event for a
// state change. Publishing is best effort.
func (s *Service) afterTransition(ctx context.Context, res *TransitionResult, source string) {
	if res == nil {
		return
	}
	if res.DoublePayment {
		log.Errorf("[Settlement] Request %d was paid twice (transaction %s, source %s), refund needed",
			res.Request.ID, res.Transaction.ID, source)
	}
	if res.Superseded != "" {
		log.Infof("[Settlement] Transaction %s superseded pending transaction %s", res.Transaction.ID, res.Superseded)
	}
	if !res.Changed {
		return
	}

	switch res.Transaction.Status {
	case models.TransactionStatusSucceeded:
		s.metrics.Incr(MetricPaymentSucceeded)
	case models.TransactionStatusFailed:
		s.metrics.Incr(MetricPaymentFailed)
	}

	ev := SettlementEvent{
		Type:          "settlement." + res.Transaction.Status,
		TransactionID: res.Transaction.ID,
		RequestID:     res.Request.ID,
		ReferenceNo:   res.Request.ReferenceNo,
		Status:        res.Transaction.Status,
		PaymentStatus: res.Request.PaymentStatus,
		RequestStatus: res.Request.Status,
		Amount:        res.Transaction.Amount,
		Currency:      res.Transaction.Currency,
		ApplicantMail: res.Request.ApplicantEmail,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.notifier.PublishSettlement(ctx, ev); err != nil {
		log.Warnf("[Settlement] Failed to publish %s for transaction %s: %v", ev.Type, ev.TransactionID, err)
	}
}

func lookupError(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(what, err)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
