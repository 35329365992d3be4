package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

// ============================================================================
// PAYMENT CONTROLLER - settlement initiation, status and provider webhooks
// ============================================================================

// PaymentService is the settlement engine as seen by the HTTP layer.
type PaymentService interface {
	Initiate(ctx context.Context, in settlement.InitiateInput) (*settlement.InitiateResult, error)
	Status(ctx context.Context, transactionID string) (*settlement.StatusResult, error)
	ProcessWebhook(ctx context.Context, in settlement.WebhookInput) (*settlement.WebhookResult, error)
	PreviewTax(in settlement.TaxInputsInput) (*settlement.Preview, error)
	UpdateTaxInputs(ctx context.Context, requestID uint, in settlement.TaxInputsInput) (*settlement.TaxInputsResult, error)
}

// PaymentController handles payment-related HTTP requests
type PaymentController struct {
	svc PaymentService
}

func NewPaymentController(svc PaymentService) *PaymentController {
	return &PaymentController{svc: svc}
}

type transactionResponse struct {
	ID                string      `json:"id"`
	RequestID         uint        `json:"requestId"`
	PaymentMethodID   uint        `json:"paymentMethodId"`
	Provider          string      `json:"provider"`
	CheckoutReference string      `json:"checkoutReference"`
	Amount            string      `json:"amount"`
	Surcharge         string      `json:"surcharge"`
	NetAmount         string      `json:"netAmount"`
	Currency          string      `json:"currency"`
	Status            string      `json:"status"`
	FailureReason     string      `json:"failureReason,omitempty"`
	SucceededAt       interface{} `json:"succeededAt"`
	FailedAt          interface{} `json:"failedAt"`
	CreatedAt         string      `json:"createdAt"`
	UpdatedAt         string      `json:"updatedAt"`
}

func newTransactionResponse(tx *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:                tx.ID,
		RequestID:         tx.RequestID,
		PaymentMethodID:   tx.PaymentMethodID,
		Provider:          tx.Provider,
		CheckoutReference: tx.CheckoutURL,
		Amount:            money(tx.Amount),
		Surcharge:         money(tx.Surcharge),
		NetAmount:         money(tx.NetAmount),
		Currency:          tx.Currency,
		Status:            tx.Status,
		FailureReason:     tx.FailureReason,
		SucceededAt:       formatTimePtr(tx.SucceededAt),
		FailedAt:          formatTimePtr(tx.FailedAt),
		CreatedAt:         formatTime(tx.CreatedAt),
		UpdatedAt:         formatTime(tx.UpdatedAt),
	}
}

// HandleInitiatePayment starts (or resumes) the settlement of a document request.
func (pc *PaymentController) HandleInitiatePayment(c *fiber.Ctx) error {
	var in settlement.InitiateInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "Invalid request body"))
	}

	res, err := pc.svc.Initiate(c.UserContext(), in)
	if err != nil {
		return handleSettlementError(c, "initiate payment", err)
	}

	status := fiber.StatusCreated
	if res.Reused {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{
		"transactionId":     res.TransactionID,
		"checkoutReference": res.CheckoutReference,
		"payableAmount":     money(res.PayableAmount),
		"surcharge":         money(res.Surcharge),
		"netAmount":         money(res.NetAmount),
		"currency":          res.Currency,
		"status":            res.Status,
	})
}

// HandlePaymentStatus returns a transaction together with its request's payment state.
func (pc *PaymentController) HandlePaymentStatus(c *fiber.Ctx) error {
	id := c.Params("transactionId")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "transactionId missing"))
	}

	res, err := pc.svc.Status(c.UserContext(), id)
	if err != nil {
		return handleSettlementError(c, "payment status", err)
	}

	return c.JSON(fiber.Map{
		"transaction":   newTransactionResponse(&res.Transaction),
		"requestStatus": res.RequestStatus,
		"paymentStatus": res.PaymentStatus,
	})
}

// HandlePaymentWebhook receives provider callbacks. Only an invalid signature
// is refused; every accepted callback is acknowledged even when applying it
// failed, the sweep retries those.
func (pc *PaymentController) HandlePaymentWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	res, err := pc.svc.ProcessWebhook(c.UserContext(), settlement.WebhookInput{
		Payload:   payload,
		Signature: c.Get(settlement.SignatureHeader),
	})
	if err != nil {
		return handleSettlementError(c, "webhook", err)
	}

	if res.ProcessingError != nil {
		log.Warnf("[API] Webhook event %s acknowledged with processing error: %v", res.EventID, res.ProcessingError)
	}
	return c.JSON(fiber.Map{"received": true})
}

// HandleTaxPreview computes the community tax and payable amount for a set of inputs.
func (pc *PaymentController) HandleTaxPreview(c *fiber.Ctx) error {
	var in settlement.TaxInputsInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "Invalid request body"))
	}

	preview, err := pc.svc.PreviewTax(in)
	if err != nil {
		return handleSettlementError(c, "tax preview", err)
	}
	return c.JSON(newPreviewResponse(preview))
}

// HandleUpdateTaxInputs stores the tax inputs of a regulated request.
func (pc *PaymentController) HandleUpdateTaxInputs(c *fiber.Ctx) error {
	requestID, err := parseIDParam(c, "requestId")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", err.Error()))
	}

	var in settlement.TaxInputsInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorBody("validation_error", "Invalid request body"))
	}

	res, err := pc.svc.UpdateTaxInputs(c.UserContext(), requestID, in)
	if err != nil {
		return handleSettlementError(c, "update tax inputs", err)
	}

	return c.JSON(fiber.Map{
		"requestId": requestID,
		"inputs": fiber.Map{
			"income":                money(res.Inputs.Income),
			"realPropertyValue":     money(res.Inputs.RealPropertyValue),
			"personalPropertyValue": money(res.Inputs.PersonalPropertyValue),
			"businessReceipts":      money(res.Inputs.BusinessReceipts),
		},
		"totalFee": money(res.TotalFee),
		"preview":  newPreviewResponse(&res.Preview),
	})
}

func newPreviewResponse(p *settlement.Preview) fiber.Map {
	b := p.Breakdown
	s := p.Settlement
	return fiber.Map{
		"breakdown": fiber.Map{
			"basic":            money(b.Basic),
			"income":           money(b.Income),
			"realProperty":     money(b.RealProperty),
			"personalProperty": money(b.PersonalProperty),
			"propertyCapped":   money(b.PropertyCapped),
			"businessRaw":      money(b.BusinessRaw),
			"businessCapped":   money(b.BusinessCapped),
			"total":            money(b.Total),
		},
		"settlement": fiber.Map{
			"documentFee":   money(s.DocumentFee),
			"processingFee": money(s.ProcessingFee),
			"base":          money(s.Base),
			"surcharge":     money(s.Surcharge),
			"payable":       money(s.Payable),
		},
		"currency": p.Currency,
	}
}
