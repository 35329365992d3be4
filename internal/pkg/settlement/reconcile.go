package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feecalc"
)

const (
	DefaultReconcileWindow = 48 * time.Hour
	reconcileListTimeout   = 2 * time.Minute
)

// Reconcile compares provider payments updated within the trailing window
// against the local ledger. Pending transactions the provider reports as
// terminal are moved with the same transition the webhook path uses; anything
// it cannot correct is stored as a discrepancy.
func (s *Service) Reconcile(ctx context.Context, window time.Duration) (*ReconcileReport, error) {
	if window <= 0 {
		window = DefaultReconcileWindow
	}
	now := s.now()
	report := &ReconcileReport{
		RunID:         uuid.NewString(),
		StartedAt:     now,
		WindowStart:   now.Add(-window),
		WindowEnd:     now,
		Discrepancies: []models.ReconciliationDiscrepancy{},
	}

	lctx, cancel := context.WithTimeout(ctx, reconcileListTimeout)
	payments, err := s.provider.ListPayments(lctx, report.WindowStart, report.WindowEnd)
	cancel()
	if err != nil {
		log.Errorf("[Reconcile] Listing provider payments failed: %v", err)
		return nil, providerUnavailable(err)
	}

	var failures int
	for _, p := range payments {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		report.Checked++
		if err := s.reconcilePayment(ctx, report, p); err != nil {
			failures++
			log.Errorf("[Reconcile] Payment %s: %v", p.ID, err)
		}
	}

	if err := s.releaseStaleReservations(ctx, report); err != nil {
		failures++
		log.Errorf("[Reconcile] Releasing stale reservations failed: %v", err)
	}

	report.FinishedAt = s.now()
	log.Infof("[Reconcile] Run %s checked=%d corrected=%d attached=%d stale=%d discrepancies=%d errors=%d",
		report.RunID, report.Checked, report.Corrected, report.Attached, report.StaleReleased, len(report.Discrepancies), failures)

	if s.archiver != nil {
		if err := s.archiver.ArchiveReconcileReport(ctx, report); err != nil {
			log.Warnf("[Reconcile] Archiving report %s failed: %v", report.RunID, err)
		}
	}
	return report, nil
}

func (s *Service) reconcilePayment(ctx context.Context, report *ReconcileReport, p ProviderPayment) error {
	outcome := NormalizePaymentStatus(p.Status)
	providerAmount := feecalc.FromMinorUnits(p.AmountMinor)

	tx, err := s.resolveTransaction(ctx, p.ResourceID, p.TransactionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		return s.recordDiscrepancy(ctx, report, &models.ReconciliationDiscrepancy{
			Kind:               models.DiscrepancyMissingLocal,
			ProviderPaymentID:  p.ID,
			ProviderResourceID: p.ResourceID,
			ProviderStatus:     p.Status,
			ProviderAmount:     providerAmount,
			Detail:             "provider payment has no local transaction",
		})
	}

	if outcome == OutcomeSucceeded && p.AmountMinor > 0 && !providerAmount.Equal(tx.Amount) {
		local := tx.Amount
		if err := s.recordDiscrepancy(ctx, report, &models.ReconciliationDiscrepancy{
			Kind:               models.DiscrepancyAmountMismatch,
			ProviderPaymentID:  p.ID,
			ProviderResourceID: p.ResourceID,
			TransactionID:      &tx.ID,
			ProviderStatus:     p.Status,
			LocalStatus:        tx.Status,
			ProviderAmount:     providerAmount,
			LocalAmount:        &local,
			Detail:             fmt.Sprintf("provider amount %s differs from local %s", providerAmount.StringFixed(2), local.StringFixed(2)),
		}); err != nil {
			return err
		}
	}

	if tx.Status == models.TransactionStatusSucceeded && outcome == OutcomeFailed &&
		(tx.ProviderPaymentID == "" || tx.ProviderPaymentID == p.ID) {
		return s.recordDiscrepancy(ctx, report, &models.ReconciliationDiscrepancy{
			Kind:               models.DiscrepancyStateConflict,
			ProviderPaymentID:  p.ID,
			ProviderResourceID: p.ResourceID,
			TransactionID:      &tx.ID,
			ProviderStatus:     p.Status,
			LocalStatus:        tx.Status,
			ProviderAmount:     providerAmount,
			Detail:             "local transaction succeeded but provider reports failure",
		})
	}

	ch := OutcomeChange{Outcome: OutcomeIgnored, At: s.now(), Reason: "reconciliation: provider status " + p.Status}
	attach := tx.ProviderResourceID == "" && p.ResourceID != ""
	if attach {
		ch.ProviderResourceID = p.ResourceID
	}
	switch {
	case outcome == OutcomeSucceeded && tx.Status != models.TransactionStatusSucceeded:
		ch.Outcome = OutcomeSucceeded
		ch.ProviderPaymentID = p.ID
	case outcome == OutcomeFailed && tx.Status == models.TransactionStatusPending:
		ch.Outcome = OutcomeFailed
	}
	if ch.Outcome == OutcomeIgnored && !attach {
		return nil
	}

	res, err := s.repo.ApplyOutcome(ctx, tx.ID, ch)
	if err != nil {
		return fmt.Errorf("apply %s to transaction %s: %w", ch.Outcome, tx.ID, err)
	}
	if attach {
		report.Attached++
	}
	if ch.Outcome != OutcomeIgnored && res.Transaction.Status != tx.Status {
		report.Corrected++
		log.Infof("[Reconcile] Transaction %s corrected from %s to %s", tx.ID, tx.Status, res.Transaction.Status)
	}
	s.afterTransition(ctx, res, "reconciliation")
	return nil
}

// releaseStaleReservations fails pending transactions that never got a
// provider link, so the request becomes payable again.
func (s *Service) releaseStaleReservations(ctx context.Context, report *ReconcileReport) error {
	stale, err := s.repo.ListStaleReservations(ctx, s.now().Add(-s.cfg.ReservationTTL))
	if err != nil {
		return err
	}
	for _, tx := range stale {
		if err := s.repo.ReleaseReservation(ctx, tx.ID, "reservation expired without provider link", models.PaymentStatusFailed); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		report.StaleReleased++
		log.Warnf("[Reconcile] Released stale reservation %s for request %d", tx.ID, tx.RequestID)
	}
	return nil
}

func (s *Service) recordDiscrepancy(ctx context.Context, report *ReconcileReport, d *models.ReconciliationDiscrepancy) error {
	d.RunID = report.RunID
	created, err := s.repo.SaveDiscrepancy(ctx, d)
	if err != nil {
		return fmt.Errorf("save %s discrepancy: %w", d.Kind, err)
	}
	if !created {
		return nil
	}
	s.metrics.Incr(MetricReconcileDiscrepancy)
	report.Discrepancies = append(report.Discrepancies, *d)
	log.Warnf("[Reconcile] %v: %s for provider payment %s", ErrReconciliationDiscrepancy, d.Kind, d.ProviderPaymentID)
	return nil
}
