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

type orderLineRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOrderLineRepository creates a new order line repository
func NewOrderLineRepository(db *sql.DB, logger *zap.Logger) *orderLineRepository {
	return &orderLineRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts all lines in a single statement, so either all or none are written.
func (r *orderLineRepository) CreateBatch(ctx context.Context, lines []*domain.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	query := `
		INSERT INTO order_lines (
			id, order_id, item_id, name, quantity, unit_price, options, created_at
		)
		VALUES `

	const cols = 8
	args := make([]interface{}, 0, len(lines)*cols)
	now := time.Now()

	for i, line := range lines {
		if i > 0 {
			query += ", "
		}
		query += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*cols+1, i*cols+2, i*cols+3, i*cols+4, i*cols+5, i*cols+6, i*cols+7, i*cols+8)

		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		if line.CreatedAt.IsZero() {
			line.CreatedAt = now
		}

		options := line.Options
		if options == nil {
			options = []domain.OptionSelection{}
		}
		optionsJSON, err := json.Marshal(options)
		if err != nil {
			return err
		}

		args = append(args,
			line.ID,
			line.OrderID,
			line.ItemID,
			line.Name,
			line.Quantity,
			line.UnitPrice,
			optionsJSON,
			line.CreatedAt,
		)
	}

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to create order lines batch", zap.Int("lines", len(lines)), zap.Error(err))
		return err
	}

	return nil
}

func (r *orderLineRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]*domain.OrderLine, error) {
	query := `
		SELECT id, order_id, item_id, name, quantity, unit_price, options, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to get order lines by order ID", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var lines []*domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		var optionsJSON []byte

		err := rows.Scan(
			&line.ID,
			&line.OrderID,
			&line.ItemID,
			&line.Name,
			&line.Quantity,
			&line.UnitPrice,
			&optionsJSON,
			&line.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		if len(optionsJSON) > 0 {
			if err := json.Unmarshal(optionsJSON, &line.Options); err != nil {
				return nil, err
			}
		}

		lines = append(lines, &line)
	}

	return lines, rows.Err()
}
