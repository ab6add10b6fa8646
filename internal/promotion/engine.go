// Package promotion validates promotion codes against a cart and computes discounts.
package promotion

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// EvalContext is the cart state rules are evaluated against
type EvalContext struct {
	CartTotal float64
	Lines     []domain.CartLine
}

// Engine resolves and evaluates promotions. It has no side effects.
type Engine struct {
	promotions repository.PromotionRepository
	logger     *zap.Logger
}

// NewEngine creates a promotion rule engine
func NewEngine(promotions repository.PromotionRepository, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		promotions: promotions,
		logger:     logger,
	}
}

// NormalizeCode upper-cases and trims a promotion code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Lookup returns the active promotion for code, or *errors.ErrNotFound.
func (e *Engine) Lookup(ctx context.Context, code string) (*domain.Promotion, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, &errors.ErrNotFound{Resource: "promotion", ID: code}
	}

	promo, err := e.promotions.GetByCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if !promo.IsActive {
		e.logger.Debug("Promotion found but inactive", zap.String("code", normalized))
		return nil, &errors.ErrNotFound{Resource: "promotion", ID: normalized}
	}
	return promo, nil
}

// Validate checks the usage limit, then every rule with AND semantics.
func (e *Engine) Validate(promo *domain.Promotion, ectx EvalContext) bool {
	if !Usable(promo) {
		return false
	}
	for _, rule := range promo.Rules {
		if !evaluateRule(rule, ectx) {
			e.logger.Debug("Promotion rule not satisfied",
				zap.String("code", promo.Code),
				zap.String("attribute", string(rule.Attribute)),
				zap.String("operator", string(rule.Operator)),
			)
			return false
		}
	}
	return true
}

// Usable reports whether promo is active and under its usage limit
func Usable(promo *domain.Promotion) bool {
	if promo == nil || !promo.IsActive {
		return false
	}
	if promo.UsageLimit != nil && promo.UsageCount >= *promo.UsageLimit {
		return false
	}
	return true
}

// ComputeDiscount returns the discount for cartTotal, always within [0, cartTotal].
func ComputeDiscount(promo *domain.Promotion, cartTotal float64) float64 {
	if promo == nil || cartTotal <= 0 || promo.Value <= 0 {
		return 0
	}
	total := decimal.NewFromFloat(cartTotal)
	value := decimal.NewFromFloat(promo.Value)

	var discount decimal.Decimal
	switch promo.Kind {
	case domain.DiscountKindPercentage:
		discount = total.Mul(value).Div(decimal.NewFromInt(100)).Round(2)
	case domain.DiscountKindFixedAmount:
		discount = decimal.Min(value, total)
	default:
		return 0
	}

	if discount.GreaterThan(total) {
		discount = total
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount.InexactFloat64()
}
