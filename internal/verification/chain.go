// Package verification checks bank transfer slips against external verification services.
package verification

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/metrics"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// ErrInvalidSlip is recorded when a provider answered but judged the slip not valid
var ErrInvalidSlip = stderrors.New("slip reported invalid")

// Provider verifies a slip image with one external service.
// An unreadable or fake slip is a result with IsValid=false, not an error.
type Provider interface {
	Name() string
	Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error)
}

// Chain tries its providers in order until one returns a valid result
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    *zap.Logger
}

// NewChain creates a chain; each provider call is bounded by timeout
func NewChain(timeout time.Duration, logger *zap.Logger, providers ...Provider) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Providers returns the provider names in the order they are tried
func (c *Chain) Providers() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Verify returns the first valid result. Later providers are not called once one succeeds.
func (c *Chain) Verify(ctx context.Context, image []byte) (*domain.VerificationResult, error) {
	if len(image) == 0 {
		return nil, &errors.ErrValidation{Message: "slip image is empty"}
	}

	var lastErr error
	attempts := 0
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++

		result, err := c.try(ctx, p, image)
		if err != nil {
			metrics.VerificationAttempts.WithLabelValues(p.Name(), metrics.OutcomeError).Inc()
			c.logger.Warn("Verification provider failed, trying next",
				zap.String("provider", p.Name()), zap.Error(err))
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
			continue
		}
		if result == nil || !result.IsValid {
			metrics.VerificationAttempts.WithLabelValues(p.Name(), metrics.OutcomeInvalid).Inc()
			c.logger.Info("Verification provider rejected slip, trying next", zap.String("provider", p.Name()))
			lastErr = fmt.Errorf("%s: %w", p.Name(), ErrInvalidSlip)
			continue
		}

		metrics.VerificationAttempts.WithLabelValues(p.Name(), metrics.OutcomeValid).Inc()
		result.ProviderName = p.Name()
		c.logger.Info("Slip verified",
			zap.String("provider", p.Name()),
			zap.Float64("amount", result.Amount),
			zap.String("reference", result.Reference),
		)
		return result, nil
	}

	return nil, &errors.ErrAllProvidersFailed{Attempts: attempts, LastErr: lastErr}
}

type providerResult struct {
	result *domain.VerificationResult
	err    error
}

// try runs one provider under its own deadline, even if the provider ignores ctx.
func (c *Chain) try(ctx context.Context, p Provider, image []byte) (*domain.VerificationResult, error) {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan providerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- providerResult{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		result, err := p.Verify(pctx, image)
		done <- providerResult{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-pctx.Done():
		return nil, pctx.Err()
	}
}
