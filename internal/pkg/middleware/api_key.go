package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

// KeyActor is the Locals key holding the name of the authenticated admin.
const KeyActor = "ADMIN_ACTOR"

// ActorHeader lets an admin client name the person behind a change.
const ActorHeader = "X-Actor"

// AdminKeyAuth guards privileged routes with the admin API key. The key is
// compared against ADMIN_API_KEY_HASH, a bcrypt hash, so the plain key never
// lives in the environment.
func AdminKeyAuth() fiber.Handler {
	return AdminKeyAuthWithHash(env.GetEnv("ADMIN_API_KEY_HASH", ""))
}

// AdminKeyAuthWithHash is AdminKeyAuth with an explicit hash.
func AdminKeyAuthWithHash(hash string) fiber.Handler {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		log.Warn("[Auth] ADMIN_API_KEY_HASH is not set, privileged routes are disabled")
	}

	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}
		if hash == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Privileged access is not configured"})
		}
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
			log.Warnf("[Auth] Rejected admin key from %s", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
		}

		actor := strings.TrimSpace(c.Get(ActorHeader))
		if actor == "" {
			actor = "admin"
		}
		if len(actor) > 100 {
			actor = actor[:100]
		}
		c.Locals(KeyActor, actor)
		return c.Next()
	}
}

// Actor returns the admin name stored by AdminKeyAuth.
func Actor(c *fiber.Ctx) string {
	if actor, ok := c.Locals(KeyActor).(string); ok && actor != "" {
		return actor
	}
	return "admin"
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
