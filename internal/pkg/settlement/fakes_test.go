package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/DocuPay/app/models"
)

// memRepo is an in-memory Repository that enforces the same unique keys as
// the MySQL schema: transactions.active_slot and (provider, provider_event_id).
type memRepo struct {
	mu            sync.Mutex
	requests      map[uint]*models.DocumentRequest
	methods       map[uint]*models.PaymentMethod
	taxInputs     map[uint]*models.RequestTaxInputs
	txs           map[string]*models.Transaction
	txOrder       []string
	events        []*models.WebhookEvent
	discrepancies []*models.ReconciliationDiscrepancy

	failApply error
}

func newMemRepo() *memRepo {
	return &memRepo{
		requests:  map[uint]*models.DocumentRequest{},
		methods:   map[uint]*models.PaymentMethod{},
		taxInputs: map[uint]*models.RequestTaxInputs{},
		txs:       map[string]*models.Transaction{},
	}
}

func (r *memRepo) addRequest(req *models.DocumentRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[req.ID] = req
}

func (r *memRepo) request(id uint) models.DocumentRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.requests[id]
}

func (r *memRepo) tx(id string) models.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.txs[id]
}

func (r *memRepo) txCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.txs)
}

func (r *memRepo) event(provider, id string) *models.WebhookEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Provider == provider && e.ProviderEventID == id {
			cp := *e
			return &cp
		}
	}
	return nil
}

func (r *memRepo) putTx(tx *models.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	r.txs[tx.ID] = &cp
	r.txOrder = append(r.txOrder, tx.ID)
}

func (r *memRepo) GetRequest(_ context.Context, id uint) (*models.DocumentRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *memRepo) GetPaymentMethod(_ context.Context, id uint) (*models.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.methods[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) GetTaxInputs(_ context.Context, requestID uint) (*models.RequestTaxInputs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.taxInputs[requestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *in
	return &cp, nil
}

func (r *memRepo) CorrectTotalFee(_ context.Context, requestID uint, fee decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[requestID]; ok && req.PaymentStatus != models.PaymentStatusPaid {
		req.TotalFee = fee
	}
	return nil
}

func (r *memRepo) SaveTaxInputs(_ context.Context, inputs *models.RequestTaxInputs, totalFee decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[inputs.RequestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	switch req.PaymentStatus {
	case models.PaymentStatusPaid:
		return ErrTaxInputsLocked
	case models.PaymentStatusPending:
		return ErrPaymentInProgress
	}
	if existing, ok := r.taxInputs[inputs.RequestID]; ok && existing.IsLocked() {
		return ErrTaxInputsLocked
	}
	cp := *inputs
	r.taxInputs[inputs.RequestID] = &cp
	req.TotalFee = totalFee
	return nil
}

func (r *memRepo) liveLocked(requestID uint, exclude string) *models.Transaction {
	for _, id := range r.txOrder {
		tx := r.txs[id]
		if id != exclude && tx.ActiveSlot != nil && *tx.ActiveSlot == requestID {
			return tx
		}
	}
	return nil
}

func (r *memRepo) FindLiveTransaction(_ context.Context, requestID uint) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.liveLocked(requestID, "")
	if tx == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *memRepo) ReserveTransaction(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.liveLocked(tx.RequestID, "") != nil {
		return ErrSlotTaken
	}
	tx.Status = models.TransactionStatusPending
	tx.ActiveSlot = slotFor(tx.RequestID)
	tx.CreatedAt = time.Now()
	cp := *tx
	r.txs[tx.ID] = &cp
	r.txOrder = append(r.txOrder, tx.ID)
	if req, ok := r.requests[tx.RequestID]; ok && req.PaymentStatus != models.PaymentStatusPaid {
		req.PaymentStatus = models.PaymentStatusPending
	}
	return nil
}

func (r *memRepo) AttachProviderLink(_ context.Context, txID, resourceID, checkoutURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[txID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	tx.CheckoutURL = checkoutURL
	if tx.ProviderResourceID == "" {
		tx.ProviderResourceID = resourceID
	}
	return nil
}

func (r *memRepo) ReleaseReservation(_ context.Context, txID, reason, restore string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[txID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if tx.Status != models.TransactionStatusPending {
		return nil
	}
	now := time.Now()
	tx.Status = models.TransactionStatusFailed
	tx.ActiveSlot = nil
	tx.FailedAt = &now
	tx.FailureReason = truncate(reason, 255)
	if req, ok := r.requests[tx.RequestID]; ok && req.PaymentStatus == models.PaymentStatusPending {
		req.PaymentStatus = restore
	}
	return nil
}

func (r *memRepo) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *memRepo) FindTransactionByProviderResource(_ context.Context, provider, resourceID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.txOrder) - 1; i >= 0; i-- {
		tx := r.txs[r.txOrder[i]]
		if tx.Provider == provider && tx.ProviderResourceID == resourceID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRepo) ApplyOutcome(_ context.Context, txID string, ch OutcomeChange) (*TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return nil, r.failApply
	}
	stored, ok := r.txs[txID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	reqStored, ok := r.requests[stored.RequestID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	tx := *stored
	req := *reqStored
	var sibling *models.Transaction
	if s := r.liveLocked(req.ID, tx.ID); s != nil {
		cp := *s
		sibling = &cp
	}

	plan := planTransition(&tx, &req, sibling, ch)
	res := &TransitionResult{
		Changed:         plan.txChanged || plan.reqChanged,
		RequestAdvanced: plan.requestAdvanced,
		DoublePayment:   plan.doublePayment,
	}
	if plan.siblingChanged {
		*r.txs[sibling.ID] = *sibling
		res.Superseded = sibling.ID
	}
	if plan.txChanged {
		*stored = tx
	}
	if plan.reqChanged {
		*reqStored = req
	}
	if plan.lockTaxInputs {
		if in, ok := r.taxInputs[req.ID]; ok && in.LockedAt == nil {
			in.LockedAt = req.PaidAt
		}
	}
	res.Transaction = tx
	res.Request = req
	return res, nil
}

func (r *memRepo) ListStaleReservations(_ context.Context, olderThan time.Time) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, id := range r.txOrder {
		tx := r.txs[id]
		if tx.Status == models.TransactionStatusPending && tx.ProviderResourceID == "" && tx.CreatedAt.Before(olderThan) {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (r *memRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Provider == event.Provider && e.ProviderEventID == event.ProviderEventID {
			cp := *e
			return false, &cp, nil
		}
	}
	event.ID = uint(len(r.events) + 1)
	event.ReceivedAt = time.Now()
	cp := *event
	r.events = append(r.events, &cp)
	out := cp
	return true, &out, nil
}

func (r *memRepo) eventByID(id uint) *models.WebhookEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (r *memRepo) MarkWebhookProcessed(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.eventByID(id)
	if e == nil {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.Processed = true
	e.ProcessedAt = &now
	e.ProcessingError = ""
	e.Attempts++
	return nil
}

func (r *memRepo) MarkWebhookFailed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.eventByID(id)
	if e == nil {
		return gorm.ErrRecordNotFound
	}
	e.ProcessingError = processingError
	e.Attempts++
	return nil
}

func (r *memRepo) ListUnprocessedWebhookEvents(_ context.Context, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WebhookEvent
	for _, e := range r.events {
		if !e.Processed && e.Attempts < maxAttempts && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memRepo) SaveDiscrepancy(_ context.Context, d *models.ReconciliationDiscrepancy) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.discrepancies {
		if existing.ProviderPaymentID == d.ProviderPaymentID && existing.Kind == d.Kind {
			return false, nil
		}
	}
	d.ID = uint(len(r.discrepancies) + 1)
	cp := *d
	r.discrepancies = append(r.discrepancies, &cp)
	return true, nil
}

func (r *memRepo) ListDiscrepancies(_ context.Context, unresolvedOnly bool, limit int) ([]models.ReconciliationDiscrepancy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ReconciliationDiscrepancy
	for i := len(r.discrepancies) - 1; i >= 0 && len(out) < limit; i-- {
		d := r.discrepancies[i]
		if unresolvedOnly && d.Resolved {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// fakeProvider records link requests and serves a canned payment list.
type fakeProvider struct {
	mu       sync.Mutex
	calls    []LinkRequest
	err      error
	delay    time.Duration
	payments []ProviderPayment
	listErr  error
}

func (p *fakeProvider) Name() string { return "paymongo" }

func (p *fakeProvider) CreateLink(ctx context.Context, req LinkRequest) (*Link, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	err := p.err
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	id := "link_" + string(rune('a'+n-1))
	return &Link{ID: id, CheckoutURL: "https://pay.example.test/" + id, Status: "unpaid"}, nil
}

func (p *fakeProvider) ListPayments(context.Context, time.Time, time.Time) ([]ProviderPayment, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.payments, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeFees map[uint]decimal.Decimal

func (f fakeFees) ActiveAmount(_ context.Context, documentTypeID uint) (decimal.Decimal, error) {
	amount, ok := f[documentTypeID]
	if !ok {
		return decimal.Zero, gorm.ErrRecordNotFound
	}
	return amount, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []SettlementEvent
	err    error
}

func (n *recordingNotifier) PublishSettlement(_ context.Context, ev SettlementEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) Incr(metric string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[metric]++
}

func (m *countingMetrics) get(metric string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[metric]
}

type memArchiver struct {
	reports []*ReconcileReport
}

func (a *memArchiver) ArchiveReconcileReport(_ context.Context, report *ReconcileReport) error {
	a.reports = append(a.reports, report)
	return nil
}

var errBoom = errors.New("boom")

const testSecret = "whsec_test"

// fixture seeds a flat-fee type (id 1, fee 45.00), a regulated type (id 2),
// an online method (id 1), an offline method (id 2) and returns the service.
type fixture struct {
	repo     *memRepo
	provider *fakeProvider
	notifier *recordingNotifier
	metrics  *countingMetrics
	archiver *memArchiver
	svc      *Service
	now      time.Time
}

func newFixture() *fixture {
	repo := newMemRepo()
	repo.methods[1] = &models.PaymentMethod{ID: 1, Code: "gcash", Name: "GCash", SupportsOnline: true, Active: true}
	repo.methods[2] = &models.PaymentMethod{ID: 2, Code: "cash", Name: "Cash", SupportsOnline: false, Active: true}

	f := &fixture{
		repo:     repo,
		provider: &fakeProvider{},
		notifier: &recordingNotifier{},
		metrics:  &countingMetrics{},
		archiver: &memArchiver{},
		now:      time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	cfg := DefaultConfig()
	cfg.WebhookSecret = testSecret
	cfg.WebhookMaxAttempts = 3

	var idMu sync.Mutex
	seq := 0
	f.svc = NewService(cfg, repo, f.provider, fakeFees{1: decimal.RequireFromString("45.00")},
		WithNotifier(f.notifier),
		WithMetrics(f.metrics),
		WithArchiver(f.archiver),
		WithClock(func() time.Time { return f.now }),
		WithIDGenerator(func() string {
			idMu.Lock()
			defer idMu.Unlock()
			seq++
			return testTxID(seq)
		}),
	)
	return f
}

func testTxID(n int) string {
	return "00000000-0000-4000-8000-" + leftPad(n)
}

func leftPad(n int) string {
	s := "000000000000"
	digits := []byte(s)
	for i := len(digits) - 1; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

func regulatedRequest(id uint) *models.DocumentRequest {
	req := flatRequest(id)
	req.DocumentTypeID = 2
	req.DocumentType = models.DocumentType{ID: 2, Code: "cedula", Name: "Community Tax Certificate", Regulated: true, Active: true}
	req.TotalFee = decimal.Zero
	return req
}

func flatRequest(id uint) *models.DocumentRequest {
	return &models.DocumentRequest{
		ID:             id,
		ReferenceNo:    "REQ-" + leftPad(int(id)),
		DocumentTypeID: 1,
		DocumentType:   models.DocumentType{ID: 1, Code: "brgy_clearance", Name: "Barangay Clearance", Active: true},
		ApplicantEmail: "applicant@example.test",
		Status:         models.RequestStatusApproved,
		PaymentStatus:  models.PaymentStatusNone,
		TotalFee:       decimal.RequireFromString("45.00"),
	}
}
