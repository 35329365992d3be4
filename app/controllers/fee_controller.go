package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/app/repository"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feeschedule"
	"github.com/ManuelReschke/DocuPay/internal/pkg/middleware"
)

// FeeService is the fee schedule as seen by the HTTP layer.
type FeeService interface {
	List(ctx context.Context) ([]repository.FeeListing, error)
	History(ctx context.Context, documentTypeID uint) ([]models.FeeScheduleEntry, error)
	Update(ctx context.Context, documentTypeID uint, amount decimal.Decimal, actor string) (*feeschedule.UpdateResult, error)
}

// FeeController handles fee schedule HTTP requests
type FeeController struct {
	fees FeeService
}

func NewFeeController(fees FeeService) *FeeController {
	return &FeeController{fees: fees}
}

type feeEntryResponse struct {
	ID             uint   `json:"id"`
	DocumentTypeID uint   `json:"documentTypeId"`
	FeeAmount      string `json:"feeAmount"`
	EffectiveDate  string `json:"effectiveDate"`
	Active         bool   `json:"active"`
	CreatedBy      string `json:"createdBy"`
}

func newFeeEntryResponse(e *models.FeeScheduleEntry) *feeEntryResponse {
	if e == nil {
		return nil
	}
	return &feeEntryResponse{
		ID:             e.ID,
		DocumentTypeID: e.DocumentTypeID,
		FeeAmount:      money(e.Amount),
		EffectiveDate:  formatTime(e.EffectiveDate),
		Active:         e.Active,
		CreatedBy:      e.CreatedBy,
	}
}

type updateFeeRequest struct {
	FeeAmount string `json:"feeAmount"`
}

// handleFeeError maps fee schedule errors to HTTP
func handleFeeError(c *fiber.Ctx, op string, err error) error {
	switch {
	case errors.Is(err, feeschedule.ErrDocumentTypeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorBody("not_found", err.Error()))
	case errors.Is(err, feeschedule.ErrInvalidAmount), errors.Is(err, feeschedule.ErrRegulatedType):
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", err.Error()))
	}
	log.Errorf("[API] %s: %v", op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal_server_error", "Internal server error"))
}

// HandleListFees returns every active document type with its active fee.
func (fc *FeeController) HandleListFees(c *fiber.Ctx) error {
	listings, err := fc.fees.List(c.UserContext())
	if err != nil {
		return handleFeeError(c, "list fees", err)
	}

	items := make([]fiber.Map, 0, len(listings))
	for _, l := range listings {
		items = append(items, fiber.Map{
			"documentType": fiber.Map{
				"id":        l.DocumentType.ID,
				"code":      l.DocumentType.Code,
				"name":      l.DocumentType.Name,
				"regulated": l.DocumentType.Regulated,
			},
			"activeFee": newFeeEntryResponse(l.Entry),
		})
	}
	return c.JSON(fiber.Map{"fees": items})
}

// HandleFeeHistory returns all fee versions of a document type, newest first.
func (fc *FeeController) HandleFeeHistory(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "documentTypeId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", err.Error()))
	}

	entries, err := fc.fees.History(c.UserContext(), id)
	if err != nil {
		return handleFeeError(c, "fee history", err)
	}

	history := make([]*feeEntryResponse, 0, len(entries))
	for i := range entries {
		history = append(history, newFeeEntryResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"documentTypeId": id, "history": history})
}

// HandleUpdateFee appends a new active fee version. Privileged.
func (fc *FeeController) HandleUpdateFee(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "documentTypeId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", err.Error()))
	}

	var req updateFeeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "Invalid request body"))
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(req.FeeAmount))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "feeAmount must be a decimal string"))
	}

	res, err := fc.fees.Update(c.UserContext(), id, amount, middleware.Actor(c))
	if err != nil {
		return handleFeeError(c, "update fee", err)
	}

	return c.JSON(fiber.Map{
		"changed":   res.Changed,
		"activeFee": newFeeEntryResponse(res.Entry),
	})
}
