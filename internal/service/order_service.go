package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/metrics"
	"github.com/jafarshop/tablepos/internal/promotion"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/pkg/errors"
)

const compensationTimeout = 5 * time.Second

// OrderService persists orders as a header plus lines, removing the header again if the lines fail.
type OrderService struct {
	repos    *repository.Repositories
	promos   *promotion.Engine
	notifier OrderNotifier
	logger   *zap.Logger
}

// NewOrderService creates a new order service. A nil notifier disables notifications.
func NewOrderService(repos *repository.Repositories, promos *promotion.Engine, notifier OrderNotifier, logger *zap.Logger) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &OrderService{
		repos:    repos,
		promos:   promos,
		notifier: notifier,
		logger:   logger,
	}
}

// CreateOrder validates the cart, applies an optional promotion and persists the order.
// It does not deduplicate; callers replaying submissions are responsible for that.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if err := ValidateRequest(req); err != nil {
		metrics.OrdersTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, err
	}

	subtotal := cartSubtotal(req.Items)

	var promo *domain.Promotion
	discount := decimal.Zero
	if req.PromotionCode != nil && strings.TrimSpace(*req.PromotionCode) != "" {
		p, err := s.resolvePromotion(ctx, *req.PromotionCode, subtotal, req.Items)
		if err != nil {
			return nil, err
		}
		promo = p
		discount = decimal.NewFromFloat(promotion.ComputeDiscount(promo, subtotal.InexactFloat64()))
	}
	total := subtotal.Sub(discount)

	order := &domain.Order{
		TableRef:            strings.TrimSpace(req.TableRef),
		Status:              domain.OrderStatusPending,
		TotalAmount:         total.InexactFloat64(),
		DiscountAmount:      discount.InexactFloat64(),
		SpecialInstructions: req.SpecialInstructions,
		CustomerRef:         req.CustomerRef,
	}
	if promo != nil {
		id := promo.ID
		order.AppliedPromotionID = &id
	}

	s.logger.Info("Creating order header",
		zap.String("table_ref", order.TableRef),
		zap.Float64("total_amount", order.TotalAmount),
		zap.Float64("discount_amount", order.DiscountAmount),
	)
	if err := s.repos.Order.Create(ctx, order); err != nil {
		s.logger.Error("Failed to create order header", zap.Error(err))
		metrics.OrdersTotal.WithLabelValues(metrics.OutcomeHeaderFailed).Inc()
		return nil, &errors.ErrOrderCreation{Stage: errors.StageHeader, Err: err}
	}

	lines := snapshotLines(order.ID, req.Items)

	s.logger.Info("Inserting order lines", zap.String("order_id", order.ID.String()), zap.Int("line_count", len(lines)))
	if err := s.repos.OrderLine.CreateBatch(ctx, lines); err != nil {
		s.logger.Error("Failed to create order lines, removing header",
			zap.String("order_id", order.ID.String()), zap.Error(err))
		compensated := s.compensate(ctx, order.ID)
		metrics.OrdersTotal.WithLabelValues(metrics.OutcomeLinesFailed).Inc()
		return nil, &errors.ErrOrderCreation{Stage: errors.StageLines, Err: err, Compensated: compensated}
	}

	if promo != nil {
		// usage counts on creation; a failure here does not undo the order
		if err := s.repos.Promotion.IncrementUsage(ctx, promo.ID); err != nil {
			s.logger.Warn("Failed to increment promotion usage",
				zap.String("promotion_id", promo.ID.String()), zap.Error(err))
		}
	}

	event := &domain.OrderEvent{
		OrderID:   order.ID,
		EventType: domain.EventOrderCreated,
		EventData: map[string]interface{}{
			"table_ref":       order.TableRef,
			"total_amount":    order.TotalAmount,
			"discount_amount": order.DiscountAmount,
			"line_count":      len(lines),
		},
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record order event", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	s.notifier.NotifyOrderPlaced(order, lines)

	metrics.OrdersTotal.WithLabelValues(metrics.OutcomeCreated).Inc()
	s.logger.Info("Order created", zap.String("order_id", order.ID.String()))

	return &CreateOrderResult{
		OrderID:        order.ID,
		Subtotal:       subtotal.InexactFloat64(),
		DiscountAmount: order.DiscountAmount,
		TotalAmount:    order.TotalAmount,
		PromotionID:    order.AppliedPromotionID,
	}, nil
}

// GetOrder returns the order header and its lines
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetails, error) {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repos.OrderLine.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetails{Order: order, Lines: lines}, nil
}

// ListOrders returns order headers, newest first
func (s *OrderService) ListOrders(ctx context.Context, limit, offset int) ([]*domain.Order, error) {
	return s.repos.Order.List(ctx, limit, offset)
}

// MarkPaid moves a pending order to paid after a successful slip verification
// (idempotent: already paid returns success)
func (s *OrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, result *domain.VerificationResult) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusPaid {
		return nil
	}

	if !order.Status.CanTransitionTo(domain.OrderStatusPaid) {
		return &errors.ErrInvalidStateTransition{
			From: order.Status,
			To:   domain.OrderStatusPaid,
		}
	}

	if err := s.repos.Order.UpdateStatus(ctx, orderID, order.Status, domain.OrderStatusPaid); err != nil {
		if alreadyIn(err, domain.OrderStatusPaid) {
			return nil
		}
		return err
	}

	event := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: domain.EventPaymentVerified,
		EventData: map[string]interface{}{
			"from":           order.Status,
			"to":             domain.OrderStatusPaid,
			"provider":       result.ProviderName,
			"amount":         result.Amount,
			"sender_name":    result.SenderName,
			"reference":      result.Reference,
			"transferred_at": result.TransferredAt,
		},
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record payment event", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	return nil
}

// CancelOrder cancels a pending order (idempotent: already cancelled returns success)
func (s *OrderService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error {
	order, err := s.repos.Order.GetByID(ctx, orderID)
	if err != nil {
		return err
	}

	if order.Status == domain.OrderStatusCancelled {
		return nil
	}

	if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
		return &errors.ErrInvalidStateTransition{
			From: order.Status,
			To:   domain.OrderStatusCancelled,
		}
	}

	if err := s.repos.Order.UpdateStatus(ctx, orderID, order.Status, domain.OrderStatusCancelled); err != nil {
		if alreadyIn(err, domain.OrderStatusCancelled) {
			return nil
		}
		return err
	}

	event := &domain.OrderEvent{
		OrderID:   orderID,
		EventType: domain.EventStatusChange,
		EventData: map[string]interface{}{
			"from":   order.Status,
			"to":     domain.OrderStatusCancelled,
			"reason": reason,
		},
	}
	if err := s.repos.OrderEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record status change event", zap.String("order_id", orderID.String()), zap.Error(err))
	}

	return nil
}

// alreadyIn reports whether a lost status race ended in the wanted status anyway
func alreadyIn(err error, status domain.OrderStatus) bool {
	var transition *errors.ErrInvalidStateTransition
	return stderrors.As(err, &transition) && transition.From == status
}

func (s *OrderService) resolvePromotion(ctx context.Context, code string, subtotal decimal.Decimal, items []domain.CartLine) (*domain.Promotion, error) {
	promo, err := s.promos.Lookup(ctx, code)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); ok {
			metrics.OrdersTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
			return nil, &errors.ErrValidation{
				Message: "unknown promotion code",
				Fields:  map[string]string{"promotion_code": code},
			}
		}
		s.logger.Error("Failed to look up promotion", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	ectx := promotion.EvalContext{CartTotal: subtotal.InexactFloat64(), Lines: items}
	if !s.promos.Validate(promo, ectx) {
		metrics.OrdersTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, &errors.ErrValidation{
			Message: "promotion is not applicable to this order",
			Fields:  map[string]string{"promotion_code": code},
		}
	}
	return promo, nil
}

// compensate deletes a header whose lines could not be written. A failed delete
// leaves an orphaned pending header; it is logged, never returned.
func (s *OrderService) compensate(ctx context.Context, orderID uuid.UUID) bool {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.repos.Order.Delete(cctx, orderID); err != nil {
		s.logger.Error("Compensating delete failed, order header left without lines",
			zap.String("order_id", orderID.String()), zap.Error(err))
		return false
	}
	metrics.OrdersTotal.WithLabelValues(metrics.OutcomeCompensated).Inc()
	s.logger.Info("Order header removed after line failure", zap.String("order_id", orderID.String()))
	return true
}

// ValidateRequest checks a request before anything is written or queued
func ValidateRequest(req *CreateOrderRequest) error {
	if req == nil {
		return &errors.ErrValidation{Message: "request is required"}
	}
	fields := map[string]string{}
	if strings.TrimSpace(req.TableRef) == "" {
		fields["table_ref"] = "required"
	}
	if len(req.Items) == 0 {
		fields["items"] = "at least one item is required"
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.ItemID) == "" {
			fields[itemField(i, "item_id")] = "required"
		}
		if item.Quantity < 1 {
			fields[itemField(i, "quantity")] = "must be at least 1"
		}
		if item.UnitPrice < 0 {
			fields[itemField(i, "unit_price")] = "must not be negative"
		}
	}
	if len(fields) > 0 {
		return &errors.ErrValidation{Message: "invalid order request", Fields: fields}
	}
	return nil
}

func itemField(i int, name string) string {
	return fmt.Sprintf("items[%d].%s", i, name)
}

func cartSubtotal(items []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.UnitPrice).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}

// snapshotLines copies price and options out of the request so later changes
// to the cart cannot reach the persisted lines.
func snapshotLines(orderID uuid.UUID, items []domain.CartLine) []*domain.OrderLine {
	lines := make([]*domain.OrderLine, 0, len(items))
	for _, item := range items {
		var options []domain.OptionSelection
		if len(item.Options) > 0 {
			options = make([]domain.OptionSelection, len(item.Options))
			copy(options, item.Options)
		}
		lines = append(lines, &domain.OrderLine{
			OrderID:   orderID,
			ItemID:    item.ItemID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Options:   options,
		})
	}
	return lines
}
