package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/metrics"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/internal/service"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// OrderSubmitter persists an order; satisfied by *service.OrderService
type OrderSubmitter interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*service.CreateOrderResult, error)
}

// SignalSource reports connectivity changes
type SignalSource interface {
	OnOffline(fn func())
	OnOnline(fn func())
}

// SubmitResult is either a persisted order or a queued submission
type SubmitResult struct {
	Queued  bool                       `json:"queued"`
	QueueID uuid.UUID                  `json:"queue_id,omitempty"`
	Result  *service.CreateOrderResult `json:"result,omitempty"`
}

// SyncReport summarises one drain pass
type SyncReport struct {
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped"`
}

// SyncProgress is reported after each item of a drain pass
type SyncProgress struct {
	Done    int
	Total   int
	QueueID uuid.UUID
	Err     error
}

// Status is a point-in-time view of the coordinator
type Status struct {
	Online    bool `json:"online"`
	Syncing   bool `json:"syncing"`
	QueueSize int  `json:"queue_size"`
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithIdempotencyKeys records the Idempotency-Key of a queued submission
// once its replay has created the order, so a later retry finds it.
func WithIdempotencyKeys(keys repository.IdempotencyKeyRepository) Option {
	return func(c *Coordinator) {
		c.keys = keys
	}
}

// SubmitOption annotates a single submission
type SubmitOption func(*submission)

type submission struct {
	key  string
	hash string
}

// WithIdempotencyKey ties the submission to a client key and the hash of
// its request body. A keyed submission is queued at most once.
func WithIdempotencyKey(key, requestHash string) SubmitOption {
	return func(s *submission) {
		s.key = key
		s.hash = requestHash
	}
}

// queuedOrder is the stored form of a submission. Entries written without
// a key hold the bare request instead.
type queuedOrder struct {
	Request        *service.CreateOrderRequest `json:"request"`
	IdempotencyKey string                      `json:"idempotency_key,omitempty"`
	RequestHash    string                      `json:"request_hash,omitempty"`
}

// WithProgress registers a callback invoked after every replayed item
func WithProgress(fn func(SyncProgress)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

// Coordinator routes submissions to the service or the queue depending on
// connectivity, and replays the queue when connectivity returns.
type Coordinator struct {
	queue     *Queue
	submitter OrderSubmitter
	logger    *zap.Logger
	progress  func(SyncProgress)
	keys      repository.IdempotencyKeyRepository

	// held across the duplicate check and the append of a keyed submission
	enqueueMu sync.Mutex

	online    atomic.Bool
	syncing   atomic.Bool
	queueSize atomic.Int64
	wg        sync.WaitGroup
}

// NewCoordinator creates a coordinator that starts out online
func NewCoordinator(queue *Queue, submitter OrderSubmitter, logger *zap.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		queue:     queue,
		submitter: submitter,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.online.Store(true)
	metrics.Online.Set(1)
	return c
}

// Attach subscribes to a connectivity signal source
func (c *Coordinator) Attach(src SignalSource) {
	src.OnOffline(func() { c.SetOnline(false) })
	src.OnOnline(func() { c.SetOnline(true) })
}

// SetOnline records connectivity. Going from offline to online starts a
// background drain.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if was == online {
		return
	}

	if !online {
		metrics.Online.Set(0)
		c.logger.Warn("Connectivity lost, new orders will be queued")
		return
	}

	metrics.Online.Set(1)
	c.logger.Info("Connectivity restored, syncing queued orders")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		report, err := c.DrainAndSync(context.Background())
		if err != nil {
			c.logger.Error("Background sync failed", zap.Error(err))
			return
		}
		c.logger.Info("Background sync finished",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("remaining", report.Remaining),
			zap.Bool("skipped", report.Skipped),
		)
	}()
}

func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// Status reports connectivity, whether a drain is running, and the last polled queue size
func (c *Coordinator) Status() Status {
	return Status{
		Online:    c.online.Load(),
		Syncing:   c.syncing.Load(),
		QueueSize: int(c.queueSize.Load()),
	}
}

// Submit creates the order now, or queues it when offline or when the backend
// cannot be reached. Any other failure is returned unchanged.
func (c *Coordinator) Submit(ctx context.Context, req *service.CreateOrderRequest, opts ...SubmitOption) (*SubmitResult, error) {
	if err := service.ValidateRequest(req); err != nil {
		return nil, err
	}

	var sub submission
	for _, opt := range opts {
		opt(&sub)
	}

	if !c.online.Load() {
		return c.enqueue(ctx, req, sub)
	}

	result, err := c.submitter.CreateOrder(ctx, req)
	if err == nil {
		return &SubmitResult{Result: result}, nil
	}
	if !errors.IsNetworkUnavailable(err) {
		return nil, err
	}

	c.logger.Warn("Order backend unreachable, queueing submission", zap.Error(err))
	return c.enqueue(ctx, req, sub)
}

func (c *Coordinator) enqueue(ctx context.Context, req *service.CreateOrderRequest, sub submission) (*SubmitResult, error) {
	payload, err := json.Marshal(queuedOrder{Request: req, IdempotencyKey: sub.key, RequestHash: sub.hash})
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	// the local queue write must not fail because the caller's deadline already passed
	ctx = context.WithoutCancel(ctx)

	if sub.key != "" {
		c.enqueueMu.Lock()
		defer c.enqueueMu.Unlock()

		existing, queued, err := c.findQueued(ctx, sub.key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if queued.RequestHash != sub.hash {
				return nil, &errors.ErrConflict{Message: "idempotency key already used with a different request body"}
			}
			c.logger.Info("Submission already queued",
				zap.String("idempotency_key", sub.key),
				zap.String("queue_id", existing.ID.String()),
			)
			return &SubmitResult{Queued: true, QueueID: existing.ID}, nil
		}
	}

	item, err := c.queue.Enqueue(ctx, payload)
	if err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(metrics.OutcomeQueued).Inc()
	return &SubmitResult{Queued: true, QueueID: item.ID}, nil
}

// DrainAndSync replays a snapshot of the queue oldest first. Items that fail
// stay queued and the pass continues with the next one. Items queued while
// the pass runs wait for the next pass. Only one pass runs at a time; a
// concurrent call returns a report with Skipped set.
func (c *Coordinator) DrainAndSync(ctx context.Context) (SyncReport, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		metrics.SyncPassesTotal.WithLabelValues("skipped").Inc()
		return SyncReport{Skipped: true}, nil
	}
	defer c.syncing.Store(false)

	// a started pass runs to completion
	ctx = context.WithoutCancel(ctx)

	items, err := c.queue.List(ctx)
	if err != nil {
		metrics.SyncPassesTotal.WithLabelValues("error").Inc()
		return SyncReport{}, err
	}

	var report SyncReport
	removed := 0
	for i, item := range items {
		created, err := c.replay(ctx, item)
		if created {
			report.Succeeded++
			metrics.SyncItemsTotal.WithLabelValues("succeeded").Inc()
		} else {
			report.Failed++
			metrics.SyncItemsTotal.WithLabelValues("failed").Inc()
		}
		if err == nil {
			removed++
		} else {
			c.logger.Warn("Queued submission not synced",
				zap.String("queue_id", item.ID.String()),
				zap.Bool("order_created", created),
				zap.Error(err),
			)
		}

		if c.progress != nil {
			c.progress(SyncProgress{Done: i + 1, Total: len(items), QueueID: item.ID, Err: err})
		}
	}
	report.Remaining = len(items) - removed

	metrics.SyncPassesTotal.WithLabelValues("completed").Inc()
	return report, nil
}

func (c *Coordinator) findQueued(ctx context.Context, key string) (*domain.QueuedSubmission, *queuedOrder, error) {
	items, err := c.queue.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for i := range items {
		queued, err := decodeQueued(items[i].Payload)
		if err != nil {
			continue
		}
		if queued.IdempotencyKey == key {
			return &items[i], queued, nil
		}
	}
	return nil, nil, nil
}

func decodeQueued(payload json.RawMessage) (*queuedOrder, error) {
	var queued queuedOrder
	if err := json.Unmarshal(payload, &queued); err != nil {
		return nil, err
	}
	if queued.Request != nil {
		return &queued, nil
	}

	var req service.CreateOrderRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return &queuedOrder{Request: &req}, nil
}

// replay submits one queued item and removes it. created is true when the
// order was persisted, even if the queue entry could not be removed.
func (c *Coordinator) replay(ctx context.Context, item domain.QueuedSubmission) (created bool, err error) {
	queued, err := decodeQueued(item.Payload)
	if err != nil {
		return false, fmt.Errorf("undecodable payload: %w", err)
	}

	if orderID, ok := c.alreadyCreated(ctx, queued); ok {
		c.logger.Info("Queued submission was already created, dropping it",
			zap.String("queue_id", item.ID.String()),
			zap.String("order_id", orderID.String()),
		)
		if err := c.queue.Remove(ctx, item.ID); err != nil {
			return true, err
		}
		return true, nil
	}

	result, err := c.submitter.CreateOrder(ctx, queued.Request)
	if err != nil {
		return false, err
	}
	c.recordKey(ctx, queued, result.OrderID)

	if err := c.queue.Remove(ctx, item.ID); err != nil {
		c.logger.Error("Replayed order still queued and may be submitted again",
			zap.String("queue_id", item.ID.String()),
			zap.String("order_id", result.OrderID.String()),
			zap.Error(err),
		)
		return true, err
	}

	c.logger.Info("Queued submission synced",
		zap.String("queue_id", item.ID.String()),
		zap.String("order_id", result.OrderID.String()),
	)
	return true, nil
}

// alreadyCreated reports whether the submission's key already names an
// order, which happens when a retry was queued after an earlier copy synced.
func (c *Coordinator) alreadyCreated(ctx context.Context, queued *queuedOrder) (uuid.UUID, bool) {
	if queued.IdempotencyKey == "" || c.keys == nil {
		return uuid.Nil, false
	}
	existing, err := c.keys.GetByKey(ctx, queued.IdempotencyKey)
	if err != nil || existing == nil {
		return uuid.Nil, false
	}
	return existing.OrderID, true
}

func (c *Coordinator) recordKey(ctx context.Context, queued *queuedOrder, orderID uuid.UUID) {
	if queued.IdempotencyKey == "" || c.keys == nil {
		return
	}
	err := c.keys.Create(ctx, &domain.IdempotencyKey{
		Key:         queued.IdempotencyKey,
		OrderID:     orderID,
		RequestHash: queued.RequestHash,
	})
	if err != nil {
		c.logger.Warn("Failed to store idempotency key for replayed order",
			zap.String("idempotency_key", queued.IdempotencyKey),
			zap.String("order_id", orderID.String()),
			zap.Error(err),
		)
	}
}

// RunSizePoller records the queue size every interval until ctx is done.
// It only reads the queue.
func (c *Coordinator) RunSizePoller(ctx context.Context, interval time.Duration) {
	c.pollSize(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollSize(ctx)
		}
	}
}

func (c *Coordinator) pollSize(ctx context.Context) {
	size, err := c.queue.Size(ctx)
	if err != nil {
		c.logger.Warn("Failed to read offline queue size", zap.Error(err))
		return
	}
	c.queueSize.Store(int64(size))
	metrics.OfflineQueueSize.Set(float64(size))
}

// Wait blocks until background drains started by SetOnline have finished
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
