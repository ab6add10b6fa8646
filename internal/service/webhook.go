package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const webhookTimeout = 10 * time.Second

// WebhookSink posts order placed events as JSON to a kitchen display or similar endpoint
type WebhookSink struct {
	url    string
	client *resty.Client
	logger *zap.Logger
}

// NewWebhookSink creates a sink for url
func NewWebhookSink(url string, logger *zap.Logger) *WebhookSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSink{
		url:    url,
		client: resty.New().SetTimeout(webhookTimeout).SetRetryCount(0),
		logger: logger,
	}
}

func (w *WebhookSink) Name() string { return "webhook" }

func (w *WebhookSink) Send(ctx context.Context, event OrderPlacedEvent) error {
	body, err := json.Marshal(map[string]interface{}{
		"event": "order_placed",
		"order": event,
	})
	if err != nil {
		return fmt.Errorf("marshal order placed payload: %w", err)
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	w.logger.Info("Webhook: order notification sent",
		zap.String("url", w.url),
		zap.String("order_id", event.OrderID.String()),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
