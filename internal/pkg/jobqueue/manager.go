package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/DocuPay/internal/pkg/cache"
	"github.com/ManuelReschke/DocuPay/internal/pkg/env"
	"github.com/ManuelReschke/DocuPay/internal/pkg/settlement"
)

const (
	reconcileLockKey     = "lock:reconcile"
	reconcileScheduleKey = "lock:reconcile:schedule"
	sweepScheduleKey     = "lock:webhook_sweep:schedule"
)

// ErrReconcileRunning is returned when another instance holds the reconciliation lock.
var ErrReconcileRunning = errors.New("a reconciliation run is already in progress")

// Settlement is the part of the settlement service the background workers drive.
type Settlement interface {
	Reconcile(ctx context.Context, window time.Duration) (*settlement.ReconcileReport, error)
	ReprocessPending(ctx context.Context, limit int) (int, error)
}

// CounterFlusher moves buffered counters to the database.
type CounterFlusher interface {
	FlushAll(ctx context.Context) error
}

// Config holds the worker intervals.
type Config struct {
	Workers              int
	ReconcileInterval    time.Duration
	ReconcileWindow      time.Duration
	ReconcileTimeout     time.Duration
	WebhookSweepInterval time.Duration
	WebhookSweepLimit    int
	CounterFlushInterval time.Duration
}

// LoadConfig reads the worker settings from the environment.
func LoadConfig() Config {
	return Config{
		Workers:              env.GetEnvInt("JOBQUEUE_WORKERS", 3),
		ReconcileInterval:    env.GetEnvDuration("RECONCILE_INTERVAL", 10*time.Minute),
		ReconcileWindow:      env.GetEnvDuration("RECONCILE_WINDOW", settlement.DefaultReconcileWindow),
		ReconcileTimeout:     env.GetEnvDuration("RECONCILE_TIMEOUT", 10*time.Minute),
		WebhookSweepInterval: env.GetEnvDuration("WEBHOOK_SWEEP_INTERVAL", 2*time.Minute),
		WebhookSweepLimit:    env.GetEnvInt("WEBHOOK_SWEEP_LIMIT", 100),
		CounterFlushInterval: env.GetEnvDuration("COUNTER_FLUSH_INTERVAL", 30*time.Second),
	}
}

// Manager runs the settlement background tasks: scheduled reconciliation,
// the webhook sweep, event republishing and the counter flush.
type Manager struct {
	queue      *Queue
	cfg        Config
	settlement Settlement
	counters   CounterFlusher
	publisher  settlement.Notifier

	reconcileTicker    *time.Ticker
	sweepTicker        *time.Ticker
	counterFlushTicker *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

// ManagerOption configures optional collaborators.
type ManagerOption func(*Manager)

// WithCounters enables the periodic counter flush.
func WithCounters(c CounterFlusher) ManagerOption {
	return func(m *Manager) { m.counters = c }
}

// WithPublisher sets the publisher used to retry settlement events.
func WithPublisher(p settlement.Notifier) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

var (
	globalManager *Manager
	managerMu     sync.Mutex
)

// NewManager creates a manager on queue and registers the job handlers.
func NewManager(queue *Queue, cfg Config, svc Settlement, opts ...ManagerOption) *Manager {
	def := LoadConfig()
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = def.ReconcileWindow
	}
	if cfg.ReconcileTimeout <= 0 {
		cfg.ReconcileTimeout = def.ReconcileTimeout
	}
	if cfg.WebhookSweepInterval <= 0 {
		cfg.WebhookSweepInterval = def.WebhookSweepInterval
	}
	if cfg.WebhookSweepLimit <= 0 {
		cfg.WebhookSweepLimit = def.WebhookSweepLimit
	}
	if cfg.CounterFlushInterval <= 0 {
		cfg.CounterFlushInterval = def.CounterFlushInterval
	}

	m := &Manager{
		queue:      queue,
		cfg:        cfg,
		settlement: svc,
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	queue.Register(JobTypeReconcile, m.processReconcileJob)
	queue.Register(JobTypeWebhookSweep, m.processWebhookSweepJob)
	queue.Register(JobTypeSettlementEvent, m.processSettlementEventJob)
	return m
}

// SetManager installs the process-wide manager.
func SetManager(m *Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	globalManager = m
}

// GetManager returns the process-wide manager, or nil before SetManager.
func GetManager() *Manager {
	managerMu.Lock()
	defer managerMu.Unlock()
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.reconcileTicker = time.NewTicker(m.cfg.ReconcileInterval)
	m.wg.Add(1)
	go m.reconcileScheduler()

	m.sweepTicker = time.NewTicker(m.cfg.WebhookSweepInterval)
	m.wg.Add(1)
	go m.sweepScheduler()

	if m.counters != nil {
		m.counterFlushTicker = time.NewTicker(m.cfg.CounterFlushInterval)
		m.wg.Add(1)
		go m.counterFlushWorker()
	}

	log.Infof("[JobQueue Manager] Started (reconcile every %s over %s, webhook sweep every %s)",
		m.cfg.ReconcileInterval, m.cfg.ReconcileWindow, m.cfg.WebhookSweepInterval)
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.reconcileTicker != nil {
		m.reconcileTicker.Stop()
	}
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	if m.counters != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.counters.FlushAll(ctx); err != nil {
			log.Errorf("[JobQueue Manager] Final counter flush error: %v", err)
		}
		cancel()
	}

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// reconcileScheduler enqueues a reconciliation job every interval. The
// schedule key makes sure only one instance enqueues per interval.
func (m *Manager) reconcileScheduler() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Reconcile scheduler stopping")
			return
		case <-m.reconcileTicker.C:
			payload := ReconcileJobPayload{
				WindowSeconds: int64(m.cfg.ReconcileWindow / time.Second),
				TriggeredBy:   "schedule",
			}
			if err := m.enqueueOnce(reconcileScheduleKey, m.cfg.ReconcileInterval, JobTypeReconcile, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Scheduling reconciliation failed: %v", err)
			}
		}
	}
}

// sweepScheduler enqueues a webhook sweep every interval.
func (m *Manager) sweepScheduler() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Webhook sweep scheduler stopping")
			return
		case <-m.sweepTicker.C:
			payload := WebhookSweepJobPayload{Limit: m.cfg.WebhookSweepLimit}
			if err := m.enqueueOnce(sweepScheduleKey, m.cfg.WebhookSweepInterval, JobTypeWebhookSweep, payload.ToMap()); err != nil {
				log.Errorf("[JobQueue Manager] Scheduling webhook sweep failed: %v", err)
			}
		}
	}
}

// counterFlushWorker periodically flushes counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CounterFlushInterval)
			if err := m.counters.FlushAll(ctx); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
			cancel()
		}
	}
}

// enqueueOnce enqueues a job unless another instance already did so within
// the current interval.
func (m *Manager) enqueueOnce(scheduleKey string, interval time.Duration, jobType JobType, payload map[string]interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ttl := interval - interval/10
	if _, err := cache.AcquireLock(ctx, m.queue.client, scheduleKey, ttl); err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			log.Debugf("[JobQueue Manager] %s already scheduled by another instance", jobType)
			return nil
		}
		return err
	}
	_, err := m.queue.EnqueueJob(jobType, payload)
	return err
}

// RunReconcile runs one reconciliation under the cluster-wide lock. It is used
// by the queued job and by the admin endpoint.
func (m *Manager) RunReconcile(ctx context.Context, window time.Duration, triggeredBy string) (*settlement.ReconcileReport, error) {
	if window <= 0 {
		window = m.cfg.ReconcileWindow
	}

	lock, err := cache.AcquireLock(ctx, m.queue.client, reconcileLockKey, m.cfg.ReconcileTimeout)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, ErrReconcileRunning
		}
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			log.Warnf("[JobQueue Manager] Releasing reconcile lock failed: %v", rerr)
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, m.cfg.ReconcileTimeout)
	defer cancel()

	log.Infof("[JobQueue Manager] Reconciliation started (window=%s, triggered by %s)", window, triggeredBy)
	return m.settlement.Reconcile(rctx, window)
}

func (m *Manager) processReconcileJob(ctx context.Context, job *Job) error {
	payload, err := ReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reconcile payload: %w", err)
	}
	_, err = m.RunReconcile(ctx, payload.Window(), payload.TriggeredBy)
	if errors.Is(err, ErrReconcileRunning) {
		log.Infof("[JobQueue Manager] Skipping job %s: %v", job.ID, err)
		return nil
	}
	return err
}

func (m *Manager) processWebhookSweepJob(ctx context.Context, job *Job) error {
	payload, err := WebhookSweepJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid webhook sweep payload: %w", err)
	}
	done, err := m.settlement.ReprocessPending(ctx, payload.Limit)
	if err != nil {
		return err
	}
	if done > 0 {
		log.Infof("[JobQueue Manager] Webhook sweep completed %d events", done)
	}
	return nil
}

func (m *Manager) processSettlementEventJob(ctx context.Context, job *Job) error {
	if m.publisher == nil {
		return errors.New("no settlement event publisher configured")
	}
	payload, err := SettlementEventJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid settlement event payload: %w", err)
	}
	return m.publisher.PublishSettlement(ctx, payload.Event)
}
