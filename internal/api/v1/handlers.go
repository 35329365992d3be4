package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent
	"github.com/ManuelReschke/DocuPay/app/controllers"
)

// Pong is the ping response
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer bundles the controllers behind the v1 routes
type APIServer struct {
	payments       *controllers.PaymentController
	fees           *controllers.FeeController
	reconciliation *controllers.ReconciliationController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(payments *controllers.PaymentController, fees *controllers.FeeController, reconciliation *controllers.ReconciliationController) *APIServer {
	return &APIServer{payments: payments, fees: fees, reconciliation: reconciliation}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostPayment initiates settlement of a document request.
func (s *APIServer) PostPayment(c *fiber.Ctx) error {
	return s.payments.HandleInitiatePayment(c)
}

// GetPayment returns the status of a transaction.
func (s *APIServer) GetPayment(c *fiber.Ctx) error {
	return s.payments.HandlePaymentStatus(c)
}

// PostPaymentWebhook receives provider callbacks.
func (s *APIServer) PostPaymentWebhook(c *fiber.Ctx) error {
	return s.payments.HandlePaymentWebhook(c)
}

func (s *APIServer) GetFees(c *fiber.Ctx) error {
	return s.fees.HandleListFees(c)
}

func (s *APIServer) GetFeeHistory(c *fiber.Ctx) error {
	return s.fees.HandleFeeHistory(c)
}

// PutFee appends a fee version. Admin key required.
func (s *APIServer) PutFee(c *fiber.Ctx) error {
	return s.fees.HandleUpdateFee(c)
}

func (s *APIServer) PostFeePreview(c *fiber.Ctx) error {
	return s.payments.HandleTaxPreview(c)
}

// PutTaxInputs stores the tax inputs of a regulated request.
func (s *APIServer) PutTaxInputs(c *fiber.Ctx) error {
	return s.payments.HandleUpdateTaxInputs(c)
}

// PostReconciliationRun runs reconciliation now. Admin key required.
func (s *APIServer) PostReconciliationRun(c *fiber.Ctx) error {
	return s.reconciliation.HandleRunReconciliation(c)
}

// GetDiscrepancies lists reconciliation discrepancies. Admin key required.
func (s *APIServer) GetDiscrepancies(c *fiber.Ctx) error {
	return s.reconciliation.HandleListDiscrepancies(c)
}

// RegisterHandlers mounts the v1 routes on router. admin guards the
// privileged routes.
func RegisterHandlers(router fiber.Router, s *APIServer, admin fiber.Handler) {
	router.Get("/ping", s.GetPing)

	router.Post("/payments", s.PostPayment)
	router.Get("/payments/:transactionId", s.GetPayment)
	router.Post("/webhooks/payments", s.PostPaymentWebhook)

	router.Get("/fees", s.GetFees)
	router.Post("/fees/preview", s.PostFeePreview)
	router.Get("/fees/:documentTypeId/history", s.GetFeeHistory)
	router.Put("/fees/:documentTypeId", admin, s.PutFee)

	router.Put("/requests/:requestId/tax-inputs", s.PutTaxInputs)

	adminGroup := router.Group("/admin", admin)
	adminGroup.Post("/reconciliation/run", s.PostReconciliationRun)
	adminGroup.Get("/reconciliation/discrepancies", s.GetDiscrepancies)
}
