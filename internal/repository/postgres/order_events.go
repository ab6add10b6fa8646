package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
)

// orderEventRepository stores the audit trail of an order. Rows go away with
// their order through ON DELETE CASCADE, so a compensated header leaves none.
type orderEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderEventRepository(db *sql.DB, logger *zap.Logger) *orderEventRepository {
	return &orderEventRepository{db: db, logger: logger}
}

func (r *orderEventRepository) Create(ctx context.Context, event *domain.OrderEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	data := event.EventData
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event data: %w", event.EventType, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO order_events (id, order_id, event_type, event_data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.ID, event.OrderID, event.EventType, payload, event.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to record order event",
			zap.String("order_id", event.OrderID.String()),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert order event: %w", err)
	}

	return nil
}

// GetByOrderID returns the trail oldest first
func (r *orderEventRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, event_type, event_data, created_at
		FROM order_events
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		r.logger.Error("Failed to load order events", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to query order events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.OrderEvent, 0)
	for rows.Next() {
		event, err := scanOrderEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

func scanOrderEvent(rows *sql.Rows) (*domain.OrderEvent, error) {
	var (
		event domain.OrderEvent
		raw   []byte
	)
	if err := rows.Scan(&event.ID, &event.OrderID, &event.EventType, &raw, &event.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan order event: %w", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &event.EventData); err != nil {
			return nil, fmt.Errorf("failed to decode %s event data: %w", event.EventType, err)
		}
	}
	return &event, nil
}
