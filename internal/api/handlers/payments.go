package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/payload"
	"github.com/jafarshop/tablepos/pkg/errors"
)

const maxSlipBytes = 10 << 20

// HandlePaymentProof handles POST /v1/orders/:id/payment-proof.
// The multipart field "slip" carries the transfer slip image.
func HandlePaymentProof(orders OrderStore, verifier SlipVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		header, err := c.FormFile("slip")
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "slip image is required"})
			return
		}
		if header.Size > maxSlipBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "slip image is too large"})
			return
		}
		file, err := header.Open()
		if err != nil {
			respondError(c, logger, err)
			return
		}
		defer file.Close()
		image, err := io.ReadAll(io.LimitReader(file, maxSlipBytes))
		if err != nil {
			respondError(c, logger, err)
			return
		}

		details, err := orders.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		order := details.Order

		if order.Status == domain.OrderStatusPaid {
			c.JSON(http.StatusOK, gin.H{"order_id": order.ID.String(), "status": order.Status})
			return
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusPaid) {
			respondError(c, logger, &errors.ErrInvalidStateTransition{From: order.Status, To: domain.OrderStatusPaid})
			return
		}

		result, err := verifier.Verify(c.Request.Context(), image)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		transferred := decimal.NewFromFloat(result.Amount).Round(2)
		due := decimal.NewFromFloat(order.TotalAmount).Round(2)
		if transferred.LessThan(due) {
			logger.Info("Slip amount below order total",
				zap.String("order_id", order.ID.String()),
				zap.String("transferred", transferred.StringFixed(2)),
				zap.String("due", due.StringFixed(2)),
			)
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":        "transferred amount is less than the order total",
				"verification": result,
			})
			return
		}

		if err := orders.MarkPaid(c.Request.Context(), order.ID, result); err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id":     order.ID.String(),
			"status":       domain.OrderStatusPaid,
			"verification": result,
		})
	}
}

// HandleOrderPromptPay handles GET /v1/orders/:id/promptpay
func HandleOrderPromptPay(orders OrderStore, target string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if target == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "promptpay target is not configured"})
			return
		}
		orderID, ok := parseOrderID(c)
		if !ok {
			return
		}

		details, err := orders.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		amount := details.Order.TotalAmount
		code, err := payload.Encode(target, &amount)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"order_id": orderID.String(),
			"amount":   amount,
			"payload":  code,
		})
	}
}

// HandlePromptPay handles GET /v1/promptpay?amount=
// Without an amount the payload is reusable.
func HandlePromptPay(target string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if target == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "promptpay target is not configured"})
			return
		}

		var amount *float64
		if raw := c.Query("amount"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "amount must be a number"})
				return
			}
			amount = &v
		}

		code, err := payload.Encode(target, amount)
		if err != nil {
			respondError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"amount":  amount,
			"payload": code,
		})
	}
}
