package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/repository"
)

const IdempotencyKeyHeader = "Idempotency-Key"

const (
	ctxExistingOrderID = "idempotency_existing_order_id"
	ctxKey             = "idempotency_key"
	ctxRequestHash     = "idempotency_request_hash"
)

// IdempotencyMiddleware lets a client retry an order submission with the same
// Idempotency-Key and get the original order back instead of a duplicate.
func IdempotencyMiddleware(keys repository.IdempotencyKeyRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.Error("Failed to read request body for idempotency", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		hash := sha256.Sum256(body)
		requestHash := hex.EncodeToString(hash[:])

		existing, err := keys.GetByKey(c.Request.Context(), idempotencyKey)
		if err != nil {
			// the database may be down; let the handler decide (it may queue offline)
			logger.Warn("Failed to check idempotency key", zap.Error(err))
			c.Next()
			return
		}

		if existing != nil {
			if existing.RequestHash != requestHash {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"error": "idempotency key conflict: same key used with different payload",
				})
				return
			}
			c.Set(ctxExistingOrderID, existing.OrderID)
		} else {
			c.Set(ctxKey, idempotencyKey)
			c.Set(ctxRequestHash, requestHash)
		}

		c.Next()
	}
}

// GetIdempotencyInfo returns either the order already created for this key,
// or the key and hash to store once a new order is created.
func GetIdempotencyInfo(c *gin.Context) (key string, requestHash string, existingOrderID uuid.UUID, isExisting bool) {
	if v, ok := c.Get(ctxExistingOrderID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return "", "", id, true
		}
	}

	key = c.GetString(ctxKey)
	requestHash = c.GetString(ctxRequestHash)
	return key, requestHash, uuid.Nil, false
}
