package settlement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

// Config holds the settlement engine settings.
type Config struct {
	Provider           string
	Currency           string
	ProcessingFee      decimal.Decimal
	ProviderMinimum    decimal.Decimal
	ProviderTimeout    time.Duration
	WebhookSecret      string
	WebhookTolerance   time.Duration
	WebhookMaxAttempts int
	ReservationTTL     time.Duration
	FeeEpsilon         decimal.Decimal
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Provider:           "paymongo",
		Currency:           "PHP",
		ProcessingFee:      decimal.Zero,
		ProviderMinimum:    decimal.RequireFromString("100.00"),
		ProviderTimeout:    15 * time.Second,
		WebhookMaxAttempts: 5,
		ReservationTTL:     30 * time.Minute,
		FeeEpsilon:         decimal.RequireFromString("0.005"),
	}
}

// LoadConfig loads settlement configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	cfg.Provider = strings.ToLower(strings.TrimSpace(env.GetEnv("PAYMENT_PROVIDER", cfg.Provider)))
	cfg.Currency = strings.ToUpper(strings.TrimSpace(env.GetEnv("PAYMENT_CURRENCY", cfg.Currency)))
	cfg.ProviderTimeout = env.GetEnvDuration("PAYMENT_PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	cfg.WebhookSecret = strings.TrimSpace(env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""))
	cfg.WebhookTolerance = env.GetEnvDuration("PAYMENT_WEBHOOK_TOLERANCE", 0)
	cfg.WebhookMaxAttempts = env.GetEnvInt("WEBHOOK_MAX_ATTEMPTS", cfg.WebhookMaxAttempts)
	cfg.ReservationTTL = env.GetEnvDuration("RESERVATION_TTL", cfg.ReservationTTL)

	var err error
	if cfg.ProcessingFee, err = parseAmount("PAYMENT_PROCESSING_FEE", cfg.ProcessingFee); err != nil {
		return nil, err
	}
	if cfg.ProviderMinimum, err = parseAmount("PAYMENT_PROVIDER_MINIMUM", cfg.ProviderMinimum); err != nil {
		return nil, err
	}

	if cfg.WebhookSecret == "" {
		return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required")
	}
	if len(cfg.Currency) != 3 {
		return nil, fmt.Errorf("PAYMENT_CURRENCY must be an ISO 4217 code, got %q", cfg.Currency)
	}
	return &cfg, nil
}

func parseAmount(key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw := strings.TrimSpace(env.GetEnv(key, ""))
	if raw == "" {
		return def, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}
