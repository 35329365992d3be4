package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
	"github.com/ManuelReschke/DocuPay/internal/pkg/feecalc"
)

type webhookEnvelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Resource  webhookResource `json:"resource"`
}

type webhookResource struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaymentID string `json:"paymentId"`
	Metadata  struct {
		TransactionID string `json:"transaction_id"`
	} `json:"metadata"`
}

func parseEnvelope(payload []byte) (*webhookEnvelope, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	env.EventID = strings.TrimSpace(env.EventID)
	env.EventType = strings.TrimSpace(env.EventType)
	env.Resource.ID = strings.TrimSpace(env.Resource.ID)
	env.Resource.Metadata.TransactionID = strings.TrimSpace(env.Resource.Metadata.TransactionID)
	return &env, nil
}

// maxEventKeyLen is the width of webhook_events.provider_event_id.
const maxEventKeyLen = 191

// eventKey is the dedup key. Payloads without an event id are keyed by
// their content hash, ids wider than the column by the hash of the id.
func eventKey(env *webhookEnvelope, payload []byte) string {
	switch {
	case env == nil || env.EventID == "":
		return hashKey("hash:", payload)
	case len(env.EventID) > maxEventKeyLen:
		return hashKey("id:", []byte(env.EventID))
	}
	return env.EventID
}

func hashKey(prefix string, data []byte) string {
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:])
}

// EventTypeUnreadable marks stored callbacks whose signed body is not a
// readable envelope.
const EventTypeUnreadable = "unreadable"

// ProcessWebhook verifies, records and applies one provider callback.
//
// The returned error is non-nil only when the signature is rejected. Every
// failure after that is reported in WebhookResult.ProcessingError; accepted
// events are stored first and left for the sweep.
func (s *Service) ProcessWebhook(ctx context.Context, in WebhookInput) (*WebhookResult, error) {
	if !VerifyWebhookSignature(in.Payload, in.Signature, s.cfg.WebhookSecret, s.cfg.WebhookTolerance, s.now()) {
		log.Warnf("[Webhook] Rejected %s callback with invalid signature (%d bytes)", s.providerName(), len(in.Payload))
		return nil, newError(KindSignatureInvalid, "invalid webhook signature", nil)
	}
	s.metrics.Incr(MetricWebhookReceived)

	env, err := parseEnvelope(in.Payload)
	if err != nil {
		return s.storeUnreadable(ctx, in.Payload, err), nil
	}

	result := &WebhookResult{
		EventID: eventKey(env, in.Payload),
		Outcome: NormalizeEventType(env.EventType),
	}

	event := &models.WebhookEvent{
		Provider:        s.providerName(),
		ProviderEventID: result.EventID,
		EventType:       truncate(env.EventType, 100),
		Payload:         datatypes.JSON(in.Payload),
		SignatureValid:  true,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		// Nothing durable exists for this delivery and the provider got its
		// 200; reconciliation is what closes the gap.
		log.Errorf("[Webhook] Failed to persist event %s (%s): %v", result.EventID, env.EventType, err)
		s.metrics.Incr(MetricWebhookFailed)
		result.ProcessingError = err
		return result, nil
	}
	if !created && stored.Processed {
		s.metrics.Incr(MetricWebhookDuplicate)
		result.Duplicate = true
		return result, nil
	}

	s.handleEvent(ctx, stored, env, result)
	return result, nil
}

// ReprocessPending retries stored events that are not processed yet and
// returns how many of them completed.
func (s *Service) ReprocessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := s.repo.ListUnprocessedWebhookEvents(ctx, s.cfg.WebhookMaxAttempts, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range events {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		event := &events[i]
		env, err := parseEnvelope([]byte(event.Payload))
		if err != nil {
			log.Errorf("[Webhook] Stored event %s has an unreadable payload: %v", event.ProviderEventID, err)
			if merr := s.repo.MarkWebhookFailed(context.WithoutCancel(ctx), event.ID, truncate("unreadable payload: "+err.Error(), 2000)); merr != nil {
				log.Errorf("[Webhook] Failed to record processing error for event %s: %v", event.ProviderEventID, merr)
			}
			continue
		}
		result := &WebhookResult{EventID: event.ProviderEventID, Outcome: NormalizeEventType(env.EventType)}
		s.handleEvent(ctx, event, env, result)
		if result.ProcessingError == nil {
			done++
		} else if event.Attempts+1 >= s.cfg.WebhookMaxAttempts {
			log.Errorf("[Webhook] Event %s gave up after %d attempts: %v", event.ProviderEventID, event.Attempts+1, result.ProcessingError)
		}
	}
	return done, nil
}

// storeUnreadable keeps a signed body that is not a readable envelope for
// manual review. The raw bytes are wrapped so the JSON column accepts them,
// and the row starts at the attempt limit so the sweep leaves it alone.
func (s *Service) storeUnreadable(ctx context.Context, payload []byte, parseErr error) *WebhookResult {
	result := &WebhookResult{
		EventID:         eventKey(nil, payload),
		Outcome:         OutcomeIgnored,
		ProcessingError: fmt.Errorf("unreadable webhook body: %w", parseErr),
	}
	s.metrics.Incr(MetricWebhookFailed)
	log.Errorf("[Webhook] Signed callback %s has an unreadable body: %v", result.EventID, parseErr)

	raw, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		log.Errorf("[Webhook] Failed to wrap unreadable body %s: %v", result.EventID, err)
		return result
	}
	event := &models.WebhookEvent{
		Provider:        s.providerName(),
		ProviderEventID: result.EventID,
		EventType:       EventTypeUnreadable,
		Payload:         datatypes.JSON(raw),
		SignatureValid:  true,
		Attempts:        s.cfg.WebhookMaxAttempts,
		ProcessingError: truncate(result.ProcessingError.Error(), 2000),
	}
	created, _, err := s.repo.CreateWebhookEventIfNotExists(ctx, event)
	if err != nil {
		log.Errorf("[Webhook] Failed to persist unreadable body %s: %v", result.EventID, err)
		return result
	}
	result.Duplicate = !created
	return result
}

// handleEvent applies an accepted event and records the result on its row.
func (s *Service) handleEvent(ctx context.Context, event *models.WebhookEvent, env *webhookEnvelope, result *WebhookResult) {
	err := s.applyEvent(ctx, env, result)
	if err != nil {
		result.ProcessingError = err
		s.metrics.Incr(MetricWebhookFailed)
		log.Errorf("[Webhook] Processing event %s (%s) failed: %v", result.EventID, env.EventType, err)
		if merr := s.repo.MarkWebhookFailed(context.WithoutCancel(ctx), event.ID, truncate(err.Error(), 2000)); merr != nil {
			log.Errorf("[Webhook] Failed to record processing error for event %s: %v", result.EventID, merr)
		}
		return
	}
	if merr := s.repo.MarkWebhookProcessed(context.WithoutCancel(ctx), event.ID); merr != nil {
		// Settlement state is already committed; a retry is a no-op.
		log.Errorf("[Webhook] Failed to mark event %s processed: %v", result.EventID, merr)
	}
}

func (s *Service) applyEvent(ctx context.Context, env *webhookEnvelope, result *WebhookResult) error {
	if result.Outcome == OutcomeIgnored {
		result.Ignored = true
		log.Debugf("[Webhook] Ignoring event type %q", env.EventType)
		return nil
	}

	tx, err := s.resolveTransaction(ctx, env.Resource.ID, env.Resource.Metadata.TransactionID)
	if err != nil {
		return err
	}
	result.TransactionID = tx.ID

	if result.Outcome == OutcomeSucceeded && env.Resource.Amount > 0 {
		paid := feecalc.FromMinorUnits(env.Resource.Amount)
		if !paid.Equal(tx.Amount) {
			log.Warnf("[Webhook] Transaction %s paid %s but expected %s", tx.ID, paid.StringFixed(2), tx.Amount.StringFixed(2))
		}
	}

	res, err := s.repo.ApplyOutcome(ctx, tx.ID, OutcomeChange{
		Outcome:            result.Outcome,
		ProviderResourceID: env.Resource.ID,
		ProviderPaymentID:  strings.TrimSpace(env.Resource.PaymentID),
		Reason:             "provider reported " + env.EventType,
		At:                 s.now(),
	})
	if err != nil {
		return fmt.Errorf("apply %s to transaction %s: %w", result.Outcome, tx.ID, err)
	}
	result.Changed = res.Changed
	s.afterTransition(ctx, res, "webhook")
	return nil
}

// resolveTransaction finds the local transaction by the transaction id
// carried in the provider metadata, falling back to the provider resource id.
func (s *Service) resolveTransaction(ctx context.Context, resourceID, transactionID string) (*models.Transaction, error) {
	if transactionID != "" {
		tx, err := s.repo.GetTransaction(ctx, transactionID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if resourceID != "" {
		tx, err := s.repo.FindTransactionByProviderResource(ctx, s.providerName(), resourceID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, notFound(fmt.Sprintf("transaction for resource %q", resourceID), nil)
}
