package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores provider callbacks with deduplication metadata. A row is
// written before any effect is applied; Processed flips once the settlement
// state has been updated, and unprocessed rows are retried by the sweep.
type WebhookEvent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:varchar(20);not null;index:ux_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:varchar(191);not null;index:ux_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:json;not null" json:"payload"`
	SignatureValid  bool           `gorm:"default:false" json:"signature_valid"`
	Processed       bool           `gorm:"default:false;index:idx_webhook_events_sweep,priority:1" json:"processed"`
	Attempts        int            `gorm:"not null;default:0;index:idx_webhook_events_sweep,priority:2" json:"attempts"`
	ProcessingError string         `gorm:"type:text" json:"processing_error"`
	ReceivedAt      time.Time      `gorm:"autoCreateTime;index" json:"received_at"`
	ProcessedAt     *time.Time     `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
