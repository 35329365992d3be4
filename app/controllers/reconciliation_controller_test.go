package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

type fakeRunner struct {
	window time.Duration
	report *settlement.ReconcileReport
	err    error
}

func (f *fakeRunner) RunReconcile(_ context.Context, window time.Duration, _ string) (*settlement.ReconcileReport, error) {
	f.window = window
	return f.report, f.err
}

type fakeLister struct {
	unresolvedOnly bool
	limit          int
	items          []models.ReconciliationDiscrepancy
}

func (f *fakeLister) ListDiscrepancies(_ context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error) {
	f.unresolvedOnly = unresolvedOnly
	f.limit = limit
	return f.items, nil
}

func newReconcileApp(runner ReconcileRunner, lister DiscrepancyLister) *fiber.App {
	rc := NewReconciliationController(runner, lister)
	app := fiber.New()
	app.Post("/admin/reconciliation/run", rc.HandleRunReconciliation)
	app.Get("/admin/reconciliation/discrepancies", rc.HandleListDiscrepancies)
	return app
}

func TestHandleRunReconciliation(t *testing.T) {
	local := decimal.RequireFromString("100")
	runner := &fakeRunner{report: &settlement.ReconcileReport{
		RunID:   "run-1",
		Checked: 3,
		Discrepancies: []models.ReconciliationDiscrepancy{
			{Kind: models.DiscrepancyAmountMismatch, ProviderAmount: decimal.RequireFromString("90"), LocalAmount: &local},
		},
	}}
	app := newReconcileApp(runner, &fakeLister{})

	status, body := doJSON(t, app, http.MethodPost, "/admin/reconciliation/run", `{"windowHours":24}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 24*time.Hour, runner.window)
	assert.Equal(t, "run-1", body["runId"])
	d := body["discrepancies"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "90.00", d["providerAmount"])
	assert.Equal(t, "100.00", d["localAmount"])

	status, _ = doJSON(t, app, http.MethodPost, "/admin/reconciliation/run", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Zero(t, runner.window)

	status, _ = doJSON(t, app, http.MethodPost, "/admin/reconciliation/run", `{"windowHours":-1}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	runner.err = jobqueue.ErrReconcileRunning
	status, _ = doJSON(t, app, http.MethodPost, "/admin/reconciliation/run", "")
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestHandleListDiscrepancies(t *testing.T) {
	lister := &fakeLister{items: []models.ReconciliationDiscrepancy{{ID: 1, Kind: models.DiscrepancyMissingLocal}}}
	app := newReconcileApp(&fakeRunner{}, lister)

	status, body := doJSON(t, app, http.MethodGet, "/admin/reconciliation/discrepancies", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["discrepancies"], 1)
	assert.True(t, lister.unresolvedOnly)
	assert.Equal(t, 100, lister.limit)

	_, _ = doJSON(t, app, http.MethodGet, "/admin/reconciliation/discrepancies?all=true&limit=10", "")
	assert.False(t, lister.unresolvedOnly)
	assert.Equal(t, 10, lister.limit)
}
