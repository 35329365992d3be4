package controllers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/app/repository"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feeschedule"
	"github.com/ManuelReschke/DocuPay/internal/pkg/middleware"
)

type fakeFeeService struct {
	listings  []repository.FeeListing
	history   []models.FeeScheduleEntry
	err       error
	update    *feeschedule.UpdateResult
	lastActor string
	lastAmt   decimal.Decimal
}

func (f *fakeFeeService) List(context.Context) ([]repository.FeeListing, error) {
	return f.listings, f.err
}

func (f *fakeFeeService) History(context.Context, uint) ([]models.FeeScheduleEntry, error) {
	return f.history, f.err
}

func (f *fakeFeeService) Update(_ context.Context, _ uint, amount decimal.Decimal, actor string) (*feeschedule.UpdateResult, error) {
	f.lastActor = actor
	f.lastAmt = amount
	return f.update, f.err
}

func newFeeApp(svc FeeService) *fiber.App {
	fc := NewFeeController(svc)
	app := fiber.New()
	app.Get("/fees", fc.HandleListFees)
	app.Get("/fees/:documentTypeId/history", fc.HandleFeeHistory)
	app.Put("/fees/:documentTypeId", func(c *fiber.Ctx) error {
		c.Locals(middleware.KeyActor, "treasurer")
		return c.Next()
	}, fc.HandleUpdateFee)
	return app
}

func TestHandleListFees(t *testing.T) {
	svc := &fakeFeeService{listings: []repository.FeeListing{
		{
			DocumentType: models.DocumentType{ID: 2, Code: "barangay_clearance", Name: "Barangay Clearance"},
			Entry:        &models.FeeScheduleEntry{ID: 5, DocumentTypeID: 2, Amount: decimal.RequireFromString("50"), Active: true, EffectiveDate: time.Now()},
		},
		{DocumentType: models.DocumentType{ID: 1, Code: "community_tax_certificate", Regulated: true}},
	}}
	app := newFeeApp(svc)

	status, body := doJSON(t, app, http.MethodGet, "/fees", "")
	require.Equal(t, fiber.StatusOK, status)
	fees := body["fees"].([]interface{})
	require.Len(t, fees, 2)
	first := fees[0].(map[string]interface{})
	assert.Equal(t, "50.00", first["activeFee"].(map[string]interface{})["feeAmount"])
	assert.Nil(t, fees[1].(map[string]interface{})["activeFee"])
}

func TestHandleFeeHistory(t *testing.T) {
	svc := &fakeFeeService{history: []models.FeeScheduleEntry{
		{ID: 2, DocumentTypeID: 3, Amount: decimal.RequireFromString("75"), Active: true},
		{ID: 1, DocumentTypeID: 3, Amount: decimal.RequireFromString("50")},
	}}
	app := newFeeApp(svc)

	status, body := doJSON(t, app, http.MethodGet, "/fees/3/history", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["history"], 2)

	status, _ = doJSON(t, app, http.MethodGet, "/fees/0/history", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	svc.err = feeschedule.ErrDocumentTypeNotFound
	status, _ = doJSON(t, app, http.MethodGet, "/fees/99/history", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandleUpdateFee(t *testing.T) {
	svc := &fakeFeeService{update: &feeschedule.UpdateResult{
		Entry:   &models.FeeScheduleEntry{ID: 9, DocumentTypeID: 3, Amount: decimal.RequireFromString("80"), Active: true},
		Changed: true,
	}}
	app := newFeeApp(svc)

	status, body := doJSON(t, app, http.MethodPut, "/fees/3", `{"feeAmount":"80.00"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, "treasurer", svc.lastActor)
	assert.True(t, svc.lastAmt.Equal(decimal.RequireFromString("80")))

	status, _ = doJSON(t, app, http.MethodPut, "/fees/3", `{"feeAmount":"eighty"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	for _, err := range []error{feeschedule.ErrInvalidAmount, feeschedule.ErrRegulatedType} {
		svc.err = err
		status, _ = doJSON(t, app, http.MethodPut, "/fees/3", `{"feeAmount":"1.005"}`)
		assert.Equal(t, fiber.StatusBadRequest, status)
	}

	svc.err = errors.New("deadlock")
	status, body = doJSON(t, app, http.MethodPut, "/fees/3", `{"feeAmount":"80"}`)
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", body["message"])
}
