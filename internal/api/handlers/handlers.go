package handlers

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/offline"
	"github.com/jafarshop/tablepos/internal/service"
	"github.com/jafarshop/tablepos/internal/verification"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// OrderSubmitter creates an order now or queues it; satisfied by *offline.Coordinator
type OrderSubmitter interface {
	Submit(ctx context.Context, req *service.CreateOrderRequest, opts ...offline.SubmitOption) (*offline.SubmitResult, error)
}

// OrderStore reads and updates persisted orders; satisfied by *service.OrderService
type OrderStore interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*service.OrderDetails, error)
	ListOrders(ctx context.Context, limit, offset int) ([]*domain.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, result *domain.VerificationResult) error
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) error
}

// SlipVerifier checks a transfer slip; satisfied by *verification.Chain
type SlipVerifier interface {
	Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error)
}

// SyncRunner drains the offline queue; satisfied by *offline.Coordinator
type SyncRunner interface {
	DrainAndSync(ctx context.Context) (offline.SyncReport, error)
	Status() offline.Status
}

// ConnectivitySwitch accepts manual connectivity overrides; satisfied by *connectivity.Monitor
type ConnectivitySwitch interface {
	SetOnline(online bool)
}

// respondError maps service errors to HTTP responses
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validation *errors.ErrValidation
		notFound   *errors.ErrNotFound
		conflict   *errors.ErrConflict
		transition *errors.ErrInvalidStateTransition
		allFailed  *errors.ErrAllProvidersFailed
	)

	switch {
	case stderrors.As(err, &validation):
		body := gin.H{"error": validation.Error()}
		if len(validation.Fields) > 0 {
			body["fields"] = validation.Fields
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	case stderrors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case stderrors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case stderrors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
	case stderrors.As(err, &allFailed):
		if stderrors.Is(err, verification.ErrInvalidSlip) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":    "payment slip was rejected",
				"attempts": allFailed.Attempts,
			})
			return
		}
		logger.Warn("Slip verification unavailable", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "payment slip could not be verified",
			"attempts": allFailed.Attempts,
		})
	default:
		logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseOrderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return uuid.Nil, false
	}
	return id, true
}
