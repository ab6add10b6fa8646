package service

import (
	"context"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/metrics"
)

const sinkTimeout = 10 * time.Second

// OrderNotifier is told about every order once its lines are persisted.
// Implementations must not block the caller.
type OrderNotifier interface {
	NotifyOrderPlaced(order *domain.Order, lines []*domain.OrderLine)
}

// NotificationSink delivers an order placed event to one destination
type NotificationSink interface {
	Name() string
	Send(ctx context.Context, event OrderPlacedEvent) error
}

// NopNotifier discards notifications
type NopNotifier struct{}

func (NopNotifier) NotifyOrderPlaced(*domain.Order, []*domain.OrderLine) {}

// AsyncNotifier hands events to a background worker that fans them out to its sinks.
// When the buffer is full the event is dropped and logged.
type AsyncNotifier struct {
	sinks  []NotificationSink
	events chan OrderPlacedEvent
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewAsyncNotifier creates a notifier with the given buffer size. Call Start before use.
func NewAsyncNotifier(bufferSize int, logger *zap.Logger, sinks ...NotificationSink) *AsyncNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &AsyncNotifier{
		sinks:  sinks,
		events: make(chan OrderPlacedEvent, bufferSize),
		logger: logger,
	}
}

// NewNotifierFromConfig creates a notifier with a webhook sink and a kafka sink
// for whichever of the two is configured.
func NewNotifierFromConfig(cfg config.NotificationConfig, logger *zap.Logger) *AsyncNotifier {
	var sinks []NotificationSink
	if cfg.WebhookURL != "" {
		sinks = append(sinks, NewWebhookSink(cfg.WebhookURL, logger))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic != "" {
		sinks = append(sinks, NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
	}
	return NewAsyncNotifier(cfg.BufferSize, logger, sinks...)
}

// Start launches the delivery worker
func (n *AsyncNotifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true
	n.wg.Add(1)
	go n.run()
}

// NotifyOrderPlaced enqueues the event and returns immediately
func (n *AsyncNotifier) NotifyOrderPlaced(order *domain.Order, lines []*domain.OrderLine) {
	event := newOrderPlacedEvent(order, lines)

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.logger.Warn("Notifier closed, dropping order notification", zap.String("order_id", order.ID.String()))
		return
	}

	select {
	case n.events <- event:
	default:
		metrics.NotificationsTotal.WithLabelValues("all", metrics.OutcomeNotifyDropped).Inc()
		n.logger.Warn("Notification buffer full, dropping order notification", zap.String("order_id", order.ID.String()))
	}
}

// Close stops accepting events, waits for buffered ones to be delivered,
// then closes any sink that holds a connection.
func (n *AsyncNotifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.events)
	n.mu.Unlock()

	n.wg.Wait()

	for _, sink := range n.sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				n.logger.Warn("Failed to close notification sink", zap.String("sink", sink.Name()), zap.Error(err))
			}
		}
	}
}

func (n *AsyncNotifier) run() {
	defer n.wg.Done()
	for event := range n.events {
		for _, sink := range n.sinks {
			n.deliver(sink, event)
		}
	}
}

func (n *AsyncNotifier) deliver(sink NotificationSink, event OrderPlacedEvent) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Notification sink panicked", zap.String("sink", sink.Name()), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	if err := sink.Send(ctx, event); err != nil {
		metrics.NotificationsTotal.WithLabelValues(sink.Name(), metrics.OutcomeError).Inc()
		n.logger.Warn("Order notification failed",
			zap.String("sink", sink.Name()),
			zap.String("order_id", event.OrderID.String()),
			zap.Error(err),
		)
		return
	}
	metrics.NotificationsTotal.WithLabelValues(sink.Name(), metrics.OutcomeNotifySent).Inc()
}

func newOrderPlacedEvent(order *domain.Order, lines []*domain.OrderLine) OrderPlacedEvent {
	event := OrderPlacedEvent{
		OrderID:             order.ID,
		TableRef:            order.TableRef,
		TotalAmount:         order.TotalAmount,
		DiscountAmount:      order.DiscountAmount,
		SpecialInstructions: order.SpecialInstructions,
		Lines:               make([]OrderPlacedLine, 0, len(lines)),
		PlacedAt:            order.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, l := range lines {
		event.Lines = append(event.Lines, OrderPlacedLine{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Options:   append([]domain.OptionSelection(nil), l.Options...),
		})
	}
	return event
}
