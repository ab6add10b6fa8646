package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/pkg/errors"
)

type idempotencyKeyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewIdempotencyKeyRepository(db *sql.DB, logger *zap.Logger) *idempotencyKeyRepository {
	return &idempotencyKeyRepository{db: db, logger: logger}
}

// GetByKey returns nil, nil for an unknown key
func (r *idempotencyKeyRepository) GetByKey(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	var k domain.IdempotencyKey
	err := r.db.QueryRowContext(ctx, `
		SELECT key, order_id, request_hash, created_at
		FROM idempotency_keys
		WHERE key = $1
	`, key).Scan(&k.Key, &k.OrderID, &k.RequestHash, &k.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to look up idempotency key", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to query idempotency key: %w", err)
	}
	return &k, nil
}

// Create binds a key to an order. Re-binding a key to the order it already
// names is a no-op; binding it to another order is a conflict, which happens
// when two requests with the same key raced past the middleware.
func (r *idempotencyKeyRepository) Create(ctx context.Context, key *domain.IdempotencyKey) error {
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, order_id, request_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO NOTHING
	`, key.Key, key.OrderID, key.RequestHash, key.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to store idempotency key", zap.String("key", key.Key), zap.Error(err))
		return fmt.Errorf("failed to insert idempotency key: %w", err)
	}

	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return nil
	}

	existing, err := r.GetByKey(ctx, key.Key)
	if err != nil || existing == nil {
		return err
	}
	if existing.OrderID != key.OrderID {
		return &errors.ErrConflict{
			Message: fmt.Sprintf("idempotency key %q already belongs to order %s", key.Key, existing.OrderID),
		}
	}
	return nil
}
