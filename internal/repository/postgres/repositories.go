package postgres

import (
	"database/sql"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/repository"
)

// NewRepositories creates a new set of repositories
func NewRepositories(db *sql.DB, logger *zap.Logger) *repository.Repositories {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &repository.Repositories{
		Order:          NewOrderRepository(db, logger),
		OrderLine:      NewOrderLineRepository(db, logger),
		Promotion:      NewPromotionRepository(db, logger),
		IdempotencyKey: NewIdempotencyKeyRepository(db, logger),
		OrderEvent:     NewOrderEventRepository(db, logger),
	}
}
