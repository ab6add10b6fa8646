package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/api/middleware"
	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/offline"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/internal/service"
)

// OrderResponse represents the order response
type OrderResponse struct {
	ID                  string              `json:"id"`
	TableRef            string              `json:"table_ref"`
	Status              domain.OrderStatus  `json:"status"`
	TotalAmount         float64             `json:"total_amount"`
	DiscountAmount      float64             `json:"discount_amount"`
	AppliedPromotionID  *uuid.UUID          `json:"applied_promotion_id,omitempty"`
	SpecialInstructions *string             `json:"special_instructions,omitempty"`
	CustomerRef         *string             `json:"customer_ref,omitempty"`
	Lines               []OrderLineResponse `json:"lines,omitempty"`
	CreatedAt           string              `json:"created_at"`
	UpdatedAt           string              `json:"updated_at"`
}

type OrderLineResponse struct {
	ItemID    string                   `json:"item_id"`
	Name      string                   `json:"name"`
	Quantity  int                      `json:"quantity"`
	UnitPrice float64                  `json:"unit_price"`
	Options   []domain.OptionSelection `json:"options,omitempty"`
}

// CreateOrderResponse is returned for 201 (created) and 202 (queued offline)
type CreateOrderResponse struct {
	OrderID        *uuid.UUID         `json:"order_id,omitempty"`
	Status         domain.OrderStatus `json:"status,omitempty"`
	Subtotal       float64            `json:"subtotal,omitempty"`
	DiscountAmount float64            `json:"discount_amount,omitempty"`
	TotalAmount    float64            `json:"total_amount,omitempty"`
	PromotionID    *uuid.UUID         `json:"promotion_id,omitempty"`
	Queued         bool               `json:"queued"`
	QueueID        *uuid.UUID         `json:"queue_id,omitempty"`
}

func newOrderResponse(order *domain.Order, lines []*domain.OrderLine) OrderResponse {
	resp := OrderResponse{
		ID:                  order.ID.String(),
		TableRef:            order.TableRef,
		Status:              order.Status,
		TotalAmount:         order.TotalAmount,
		DiscountAmount:      order.DiscountAmount,
		AppliedPromotionID:  order.AppliedPromotionID,
		SpecialInstructions: order.SpecialInstructions,
		CustomerRef:         order.CustomerRef,
		CreatedAt:           order.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           order.UpdatedAt.Format(time.RFC3339),
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ItemID:    line.ItemID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			Options:   line.Options,
		})
	}
	return resp
}

// HandleCreateOrder handles POST /v1/orders
func HandleCreateOrder(submitter OrderSubmitter, orders OrderStore, keys repository.IdempotencyKeyRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, _, existingOrderID, isExisting := middleware.GetIdempotencyInfo(c)
		if isExisting {
			details, err := orders.GetOrder(c.Request.Context(), existingOrderID)
			if err != nil {
				respondError(c, logger, err)
				return
			}
			c.JSON(http.StatusOK, newOrderResponse(details.Order, details.Lines))
			return
		}

		var req service.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		idempotencyKey, requestHash, _, _ := middleware.GetIdempotencyInfo(c)
		var opts []offline.SubmitOption
		if idempotencyKey != "" {
			// a retry during an outage must not queue a second copy
			opts = append(opts, offline.WithIdempotencyKey(idempotencyKey, requestHash))
		}

		result, err := submitter.Submit(c.Request.Context(), &req, opts...)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		if result.Queued {
			queueID := result.QueueID
			c.JSON(http.StatusAccepted, CreateOrderResponse{Queued: true, QueueID: &queueID})
			return
		}

		created := result.Result
		if idempotencyKey != "" && keys != nil {
			key := &domain.IdempotencyKey{
				Key:         idempotencyKey,
				OrderID:     created.OrderID,
				RequestHash: requestHash,
			}
			if err := keys.Create(c.Request.Context(), key); err != nil {
				logger.Warn("Failed to store idempotency key", zap.Error(err))
			}
		}

		orderID := created.OrderID
		c.JSON(http.StatusCreated, CreateOrderResponse{
			OrderID:        &orderID,
			Status:         domain.OrderStatusPending,
			Subtotal:       created.Subtotal,
			DiscountAmount: created.DiscountAmount,
			TotalAmount:    created.TotalAmount,
			PromotionID:    created.PromotionID,
		})
	}
}

// HandleGetOrder handles GET /v1/orders/:id
func HandleGetOrder(orders OrderStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		details, err := orders.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, newOrderResponse(details.Order, details.Lines))
	}
}

// HandleListOrders handles GET /v1/orders
func HandleListOrders(orders OrderStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit < 1 || limit > 100 {
			limit = 50
		}

		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		list, err := orders.ListOrders(c.Request.Context(), limit, offset)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		responses := make([]OrderResponse, len(list))
		for i, order := range list {
			responses[i] = newOrderResponse(order, nil)
		}

		c.JSON(http.StatusOK, gin.H{
			"orders": responses,
			"limit":  limit,
			"offset": offset,
		})
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// HandleCancelOrder handles POST /v1/orders/:id/cancel
func HandleCancelOrder(orders OrderStore, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		var req cancelOrderRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "details": err.Error()})
				return
			}
		}

		if err := orders.CancelOrder(c.Request.Context(), orderID, req.Reason); err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id": orderID.String(),
			"status":   domain.OrderStatusCancelled,
		})
	}
}
