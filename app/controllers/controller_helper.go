package controllers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

// errorBody is the JSON shape of every error response.
func errorBody(code, message string) fiber.Map {
	return fiber.Map{"error": code, "message": message}
}

// handleSettlementError maps the settlement error taxonomy to HTTP. Provider
// and unexpected errors are logged in full and answered with a generic text.
func handleSettlementError(c *fiber.Ctx, op string, err error) error {
	kind := settlement.KindOf(err)
	switch kind {
	case settlement.KindValidation, settlement.KindNotPayable, settlement.KindAlreadySettled:
		return c.Status(fiber.StatusBadRequest).JSON(errorBody(string(kind), settlement.PublicMessage(err)))
	case settlement.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(errorBody(string(kind), settlement.PublicMessage(err)))
	case settlement.KindSignatureInvalid:
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody(string(kind), settlement.PublicMessage(err)))
	case settlement.KindProviderUnavailable:
		log.Errorf("[API] %s: %v", op, err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody(string(kind), settlement.PublicMessage(err)))
	}
	log.Errorf("[API] %s: %v", op, err)
	return c.Status(fiber.StatusInternalServerError).JSON(errorBody("internal_server_error", "Internal server error"))
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	raw := c.Params(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return uint(id), nil
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func moneyPtr(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
