package middleware

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAdminApp(t *testing.T, hash string) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/admin", AdminKeyAuthWithHash(hash), func(c *fiber.Ctx) error {
		return c.SendString(Actor(c))
	})
	return app
}

func TestAdminKeyAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	require.NoError(t, err)
	app := newAdminApp(t, string(hash))

	tests := []struct {
		name    string
		headers map[string]string
		status  int
		body    string
	}{
		{"missing key", nil, fiber.StatusUnauthorized, ""},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, fiber.StatusUnauthorized, ""},
		{"header key", map[string]string{"X-API-Key": "s3cret-key"}, fiber.StatusOK, "admin"},
		{"bearer key with actor", map[string]string{"Authorization": "Bearer s3cret-key", ActorHeader: "treasurer"}, fiber.StatusOK, "treasurer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tt.body, string(body))
			}
		})
	}
}

func TestAdminKeyAuth_NotConfigured(t *testing.T) {
	app := newAdminApp(t, "")

	req := httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set("X-API-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
