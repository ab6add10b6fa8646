package verification

import (
	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
)

// NewChainFromConfig builds the configured providers, each behind its own
// circuit breaker, in the configured order.
func NewChainFromConfig(cfg config.VerificationConfig, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}

	providers := make([]Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		var p Provider
		switch name {
		case config.ProviderSlipOK:
			p = NewSlipOKProvider(cfg.SlipOK, logger)
		case config.ProviderEasySlip:
			p = NewEasySlipProvider(cfg.EasySlip, logger)
		default:
			logger.Warn("Unknown verification provider ignored", zap.String("provider", name))
			continue
		}
		providers = append(providers, NewBreakerProvider(p, cfg.Breaker, logger))
	}

	return NewChain(cfg.Timeout, logger, providers...)
}
