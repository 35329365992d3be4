package jobqueue

import (
	"encoding/json"
	"time"

	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeReconcile       JobType = "reconcile"
	JobTypeWebhookSweep    JobType = "webhook_sweep"
	JobTypeSettlementEvent JobType = "settlement_event"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ReconcileJobPayload contains the payload for reconciliation runs
type ReconcileJobPayload struct {
	WindowSeconds int64  `json:"window_seconds"`
	TriggeredBy   string `json:"triggered_by"`
}

// ToMap converts the payload to a map for storage
func (p ReconcileJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"window_seconds": p.WindowSeconds,
		"triggered_by":   p.TriggeredBy,
	}
}

// Window returns the reconciliation window of the job.
func (p ReconcileJobPayload) Window() time.Duration {
	return time.Duration(p.WindowSeconds) * time.Second
}

// ReconcileJobPayloadFromMap creates a payload from a map
func ReconcileJobPayloadFromMap(data map[string]interface{}) (*ReconcileJobPayload, error) {
	var payload ReconcileJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// WebhookSweepJobPayload contains the payload for re-running unprocessed webhook events
type WebhookSweepJobPayload struct {
	Limit int `json:"limit"`
}

// ToMap converts the payload to a map for storage
func (p WebhookSweepJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"limit": p.Limit,
	}
}

// WebhookSweepJobPayloadFromMap creates a payload from a map
func WebhookSweepJobPayloadFromMap(data map[string]interface{}) (*WebhookSweepJobPayload, error) {
	var payload WebhookSweepJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// SettlementEventJobPayload carries a settlement event whose direct publish failed
type SettlementEventJobPayload struct {
	Event settlement.SettlementEvent `json:"event"`
}

// ToMap converts the payload to a map for storage. The event goes through
// JSON so decimal amounts keep their exact string form.
func (p SettlementEventJobPayload) ToMap() map[string]interface{} {
	var event map[string]interface{}
	data, err := json.Marshal(p.Event)
	if err == nil {
		_ = json.Unmarshal(data, &event)
	}
	return map[string]interface{}{
		"event": event,
	}
}

// SettlementEventJobPayloadFromMap creates a payload from a map
func SettlementEventJobPayloadFromMap(data map[string]interface{}) (*SettlementEventJobPayload, error) {
	var payload SettlementEventJobPayload
	if err := fromMap(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func fromMap(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
