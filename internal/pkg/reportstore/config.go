package reportstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
)

// Config holds the reconciliation report archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("REPORT_ARCHIVE_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when the report archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when the report archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when the report archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if reports should be archived
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// GetObjectKey returns the object key of a reconciliation report.
// Format: reports/reconciliation/YYYY/MM/<run id>.json
func (c *Config) GetObjectKey(runID string, startedAt time.Time) string {
	startedAt = startedAt.UTC()
	return fmt.Sprintf("reports/reconciliation/%04d/%02d/%s.json", startedAt.Year(), int(startedAt.Month()), runID)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}
