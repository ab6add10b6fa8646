package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/pkg/errors"
)

type promotionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPromotionRepository creates a new promotion repository
func NewPromotionRepository(db *sql.DB, logger *zap.Logger) *promotionRepository {
	return &promotionRepository{
		db:     db,
		logger: logger,
	}
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	query := `
		SELECT id, code, kind, value, is_active, usage_limit, usage_count, rules, created_at, updated_at
		FROM promotions
		WHERE UPPER(code) = $1
	`

	var promo domain.Promotion
	var usageLimit sql.NullInt64
	var rulesJSON []byte

	err := r.db.QueryRowContext(ctx, query, strings.ToUpper(code)).Scan(
		&promo.ID,
		&promo.Code,
		&promo.Kind,
		&promo.Value,
		&promo.IsActive,
		&usageLimit,
		&promo.UsageCount,
		&rulesJSON,
		&promo.CreatedAt,
		&promo.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, &errors.ErrNotFound{Resource: "promotion", ID: code}
	}
	if err != nil {
		r.logger.Error("Failed to get promotion by code", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	if usageLimit.Valid {
		limit := int(usageLimit.Int64)
		promo.UsageLimit = &limit
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &promo.Rules); err != nil {
			return nil, err
		}
	}

	return &promo, nil
}

// IncrementUsage bumps usage_count without exceeding usage_limit.
func (r *promotionRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE promotions
		SET usage_count = usage_count + 1, updated_at = $2
		WHERE id = $1 AND (usage_limit IS NULL OR usage_count < usage_limit)
	`

	res, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		r.logger.Error("Failed to increment promotion usage", zap.Error(err))
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &errors.ErrConflict{Message: "promotion usage limit reached or promotion missing"}
	}

	return nil
}

func (r *promotionRepository) Create(ctx context.Context, promo *domain.Promotion) error {
	query := `
		INSERT INTO promotions (
			id, code, kind, value, is_active, usage_limit, usage_count, rules, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	now := time.Now()
	if promo.ID == uuid.Nil {
		promo.ID = uuid.New()
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = now
	}
	if promo.UpdatedAt.IsZero() {
		promo.UpdatedAt = now
	}
	promo.Code = strings.ToUpper(strings.TrimSpace(promo.Code))

	rules := promo.Rules
	if rules == nil {
		rules = []domain.PromotionRule{}
	}
	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		promo.ID,
		promo.Code,
		promo.Kind,
		promo.Value,
		promo.IsActive,
		promo.UsageLimit,
		promo.UsageCount,
		rulesJSON,
		promo.CreatedAt,
		promo.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create promotion", zap.String("code", promo.Code), zap.Error(err))
		return err
	}

	return nil
}
