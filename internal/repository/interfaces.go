package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jafarshop/tablepos/internal/domain"
)

// OrderRepository defines order header data access methods
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// UpdateStatus moves an order from one status to another. It fails with
	// ErrInvalidStateTransition when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) error
	List(ctx context.Context, limit, offset int) ([]*domain.Order, error)
}

// OrderLineRepository defines order line data access methods
type OrderLineRepository interface {
	CreateBatch(ctx context.Context, lines []*domain.OrderLine) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderLine, error)
}

// PromotionRepository defines promotion data access methods
type PromotionRepository interface {
	// GetByCode expects an already upper-cased code
	GetByCode(ctx context.Context, code string) (*domain.Promotion, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	Create(ctx context.Context, promo *domain.Promotion) error
}

// IdempotencyKeyRepository defines idempotency key data access methods
type IdempotencyKeyRepository interface {
	GetByKey(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Create(ctx context.Context, key *domain.IdempotencyKey) error
}

// OrderEventRepository defines order event data access methods
type OrderEventRepository interface {
	Create(ctx context.Context, event *domain.OrderEvent) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Order          OrderRepository
	OrderLine      OrderLineRepository
	Promotion      PromotionRepository
	IdempotencyKey IdempotencyKeyRepository
	OrderEvent     OrderEventRepository
}
