package controllers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

// ReconcileRunner runs one reconciliation under the cluster lock.
type ReconcileRunner interface {
	RunReconcile(ctx context.Context, window time.Duration, triggeredBy string) (*settlement.ReconcileReport, error)
}

// DiscrepancyLister lists stored reconciliation discrepancies.
type DiscrepancyLister interface {
	ListDiscrepancies(ctx context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error)
}

// ReconciliationController serves the privileged reconciliation endpoints
type ReconciliationController struct {
	runner        ReconcileRunner
	discrepancies DiscrepancyLister
}

func NewReconciliationController(runner ReconcileRunner, discrepancies DiscrepancyLister) *ReconciliationController {
	return &ReconciliationController{runner: runner, discrepancies: discrepancies}
}

type runReconcileRequest struct {
	WindowHours int `json:"windowHours"`
}

func newDiscrepancyResponse(d *models.ReconciliationDiscrepancy) fiber.Map {
	return fiber.Map{
		"id":                 d.ID,
		"runId":              d.RunID,
		"kind":               d.Kind,
		"providerPaymentId":  d.ProviderPaymentID,
		"providerResourceId": d.ProviderResourceID,
		"transactionId":      d.TransactionID,
		"providerStatus":     d.ProviderStatus,
		"localStatus":        d.LocalStatus,
		"providerAmount":     money(d.ProviderAmount),
		"localAmount":        moneyPtr(d.LocalAmount),
		"detail":             d.Detail,
		"resolved":           d.Resolved,
		"createdAt":          formatTime(d.CreatedAt),
	}
}

// HandleRunReconciliation runs reconciliation now and returns its report.
// An empty body uses the configured window.
func (rc *ReconciliationController) HandleRunReconciliation(c *fiber.Ctx) error {
	var req runReconcileRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "Invalid request body"))
		}
	}
	if req.WindowHours < 0 || req.WindowHours > 24*31 {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "windowHours must be between 0 and 744"))
	}

	report, err := rc.runner.RunReconcile(c.UserContext(), time.Duration(req.WindowHours)*time.Hour, "admin")
	if err != nil {
		if errors.Is(err, jobqueue.ErrReconcileRunning) {
			return c.Status(fiber.StatusConflict).JSON(errorBody("conflict", err.Error()))
		}
		return handleSettlementError(c, "run reconciliation", err)
	}

	discrepancies := make([]fiber.Map, 0, len(report.Discrepancies))
	for i := range report.Discrepancies {
		discrepancies = append(discrepancies, newDiscrepancyResponse(&report.Discrepancies[i]))
	}
	log.Infof("[API] Manual reconciliation %s: checked=%d corrected=%d discrepancies=%d",
		report.RunID, report.Checked, report.Corrected, len(discrepancies))

	return c.JSON(fiber.Map{
		"runId":         report.RunID,
		"startedAt":     formatTime(report.StartedAt),
		"finishedAt":    formatTime(report.FinishedAt),
		"windowStart":   formatTime(report.WindowStart),
		"windowEnd":     formatTime(report.WindowEnd),
		"checked":       report.Checked,
		"corrected":     report.Corrected,
		"attached":      report.Attached,
		"staleReleased": report.StaleReleased,
		"discrepancies": discrepancies,
	})
}

// HandleListDiscrepancies lists discrepancies, unresolved only unless ?all=true.
func (rc *ReconciliationController) HandleListDiscrepancies(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	all, _ := strconv.ParseBool(c.Query("all", "false"))

	items, err := rc.discrepancies.ListDiscrepancies(c.UserContext(), !all, limit)
	if err != nil {
		return handleSettlementError(c, "list discrepancies", err)
	}

	out := make([]fiber.Map, 0, len(items))
	for i := range items {
		out = append(out, newDiscrepancyResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"discrepancies": out})
}
