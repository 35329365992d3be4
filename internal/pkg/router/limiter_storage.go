package router

import (
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/DocuPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

// LimiterDatabase is the Redis DB holding rate limit counters (cache uses DB 0).
const LimiterDatabase = 2

// NewLimiterStorage shares rate limit counters between instances through
// Redis. It returns nil, which makes the limiter fall back to memory, when the
// cache is not set up.
func NewLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		log.Warn("[Router] Cache not initialised, rate limits are per instance")
		return nil
	}

	host, port := splitAddr(cacheClient.Options().Addr)
	password := env.GetEnv("CACHE_PASSWORD", "")
	// Prefer password from the underlying client if present
	if p := cacheClient.Options().Password; p != "" {
		password = p
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: env.GetEnvInt("LIMITER_CACHE_DB", LimiterDatabase),
		Reset:    false,
	})
}

func splitAddr(addr string) (string, int) {
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return host, port
}
