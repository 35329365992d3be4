package notify

import (
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

const DefaultTopic = "docupay.settlement.events"

// Config holds the settlement event publisher configuration
type Config struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	Enabled      bool
}

// LoadConfig loads Kafka configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		Brokers:      splitBrokers(env.GetEnv("KAFKA_BROKERS", "")),
		Topic:        strings.TrimSpace(env.GetEnv("SETTLEMENT_EVENTS_TOPIC", DefaultTopic)),
		WriteTimeout: env.GetEnvDuration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		Enabled:      env.GetEnvBool("SETTLEMENT_EVENTS_ENABLED", false),
	}

	if config.Enabled {
		if len(config.Brokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when settlement events are enabled")
		}
		if config.Topic == "" {
			return nil, errors.New("SETTLEMENT_EVENTS_TOPIC must not be empty")
		}
	}

	return config, nil
}

// IsEnabled returns true if settlement events should be published
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
