// Package offline buffers order submissions while the backend is unreachable
// and replays them once connectivity returns.
package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// Storage persists queued submissions. List must return them oldest first.
type Storage interface {
	Append(ctx context.Context, item domain.QueuedSubmission) error
	List(ctx context.Context) ([]domain.QueuedSubmission, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// Queue is a FIFO of pending submissions on top of a Storage
type Queue struct {
	mu      sync.Mutex
	storage Storage
	now     func() time.Time
	logger  *zap.Logger
}

// NewQueue creates a queue backed by storage
func NewQueue(storage Storage, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		storage: storage,
		now:     time.Now,
		logger:  logger,
	}
}

// Enqueue appends a payload and returns the stored record
func (q *Queue) Enqueue(ctx context.Context, payload json.RawMessage) (domain.QueuedSubmission, error) {
	if len(payload) == 0 || !json.Valid(payload) {
		return domain.QueuedSubmission{}, &errors.ErrValidation{Message: "queued payload must be valid JSON"}
	}

	item := domain.QueuedSubmission{
		ID:        uuid.New(),
		CreatedAt: q.now().UTC(),
		Payload:   append(json.RawMessage(nil), payload...),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.storage.Append(ctx, item); err != nil {
		return domain.QueuedSubmission{}, fmt.Errorf("failed to queue submission: %w", err)
	}

	q.logger.Info("Submission queued", zap.String("queue_id", item.ID.String()))
	return item, nil
}

// List returns a snapshot of the queue, oldest first
func (q *Queue) List(ctx context.Context) ([]domain.QueuedSubmission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.storage.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return items, nil
}

// Remove deletes one submission. Removing an unknown id is not an error.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.storage.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove queued submission %s: %w", id, err)
	}
	return nil
}

// Size returns the number of queued submissions
func (q *Queue) Size(ctx context.Context) (int, error) {
	items, err := q.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}
