package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

// QueuedNotifier publishes directly and falls back to a queued job that the
// queue retries when the broker is unavailable.
type QueuedNotifier struct {
	publisher settlement.Notifier
	queue     *Queue
}

func NewQueuedNotifier(publisher settlement.Notifier, queue *Queue) *QueuedNotifier {
	return &QueuedNotifier{publisher: publisher, queue: queue}
}

// PublishSettlement implements settlement.Notifier.
func (n *QueuedNotifier) PublishSettlement(ctx context.Context, ev settlement.SettlementEvent) error {
	err := n.publisher.PublishSettlement(ctx, ev)
	if err == nil {
		return nil
	}

	log.Warnf("[JobQueue] Direct publish of %s for %s failed, queueing: %v", ev.Type, ev.TransactionID, err)
	if _, qerr := n.queue.EnqueueJob(JobTypeSettlementEvent, SettlementEventJobPayload{Event: ev}.ToMap()); qerr != nil {
		return fmt.Errorf("publish failed (%v) and queueing failed: %w", err, qerr)
	}
	return nil
}
