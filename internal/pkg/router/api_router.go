package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ManuelReschke/DocuPay/internal/api/v1"
	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
	"github.com/ManuelReschke/DocuPay/internal/pkg/middleware"
)

type ApiRouter struct {
	server  *apiv1.APIServer
	storage fiber.Storage
	admin   fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limiterCfg := limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 120),
		Expiration: time.Minute,
		Storage:    h.storage,
		Next: func(c *fiber.Ctx) bool {
			// provider retries must never be throttled
			return c.Path() == "/api/v1/webhooks/payments"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}

	api := app.Group("/api", limiter.New(limiterCfg))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "DocuPay settlement API",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server, h.admin)
}

// NewApiRouter creates the API router. A nil storage keeps rate limits in memory.
func NewApiRouter(server *apiv1.APIServer, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{server: server, storage: storage, admin: middleware.AdminKeyAuth()}
}
