package verification

import (
	"context"
	stderrors "errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/metrics"
)

// BreakerProvider stops calling a provider that keeps failing, so the chain
// moves on without waiting for its timeout.
type BreakerProvider struct {
	provider Provider
	cb       *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps p with a circuit breaker
func NewBreakerProvider(p Provider, cfg config.BreakerConfig, logger *zap.Logger) *BreakerProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 1
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// caller cancellation says nothing about the provider's health
		IsSuccessful: func(err error) bool {
			return err == nil || stderrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			logger.Info("Circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(p.Name()).Set(0)

	return &BreakerProvider{provider: p, cb: cb}
}

func (b *BreakerProvider) Name() string { return b.provider.Name() }

// Verify calls the wrapped provider unless the breaker is open.
// Invalid slips count as successful calls.
func (b *BreakerProvider) Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		result, err := b.provider.Verify(ctx, image)
		if err != nil {
			return nil, err
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*domain.VerificationResult), nil
}

// State returns the breaker state name
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
