// Package connectivity decides whether the order backend is reachable and
// tells subscribers when that changes.
package connectivity

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const probeTimeout = 3 * time.Second

// Probe returns nil when the backend answers
type Probe func(ctx context.Context) error

// DatabaseProbe pings the database
func DatabaseProbe(db *sql.DB) Probe {
	return db.PingContext
}

// HTTPProbe expects a 2xx from url
func HTTPProbe(url string) Probe {
	client := resty.New().SetRetryCount(0)
	return func(ctx context.Context) error {
		resp, err := client.R().SetContext(ctx).Get(url)
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("health check returned status %d", resp.StatusCode())
		}
		return nil
	}
}

// Monitor probes periodically and fires OnOffline/OnOnline callbacks on transitions.
// It starts out assuming the backend is online.
type Monitor struct {
	probe    Probe
	interval time.Duration
	logger   *zap.Logger

	// dispatch serialises transitions so subscribers see them in order
	dispatch sync.Mutex

	mu        sync.Mutex
	online    bool
	onOffline []func()
	onOnline  []func()
}

func NewMonitor(probe Probe, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		logger:   logger,
		online:   true,
	}
}

func (m *Monitor) OnOffline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOffline = append(m.onOffline, fn)
}

func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline records the state and notifies subscribers if it changed.
// Used by the probe loop and for manual overrides. A second transition
// waits until the callbacks of the first have returned, so callbacks must
// not call SetOnline themselves.
func (m *Monitor) SetOnline(online bool) {
	m.dispatch.Lock()
	defer m.dispatch.Unlock()

	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	var callbacks []func()
	if online {
		callbacks = append(callbacks, m.onOnline...)
	} else {
		callbacks = append(callbacks, m.onOffline...)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity changed", zap.Bool("online", online))
	for _, fn := range callbacks {
		fn()
	}
}

// Check probes once and updates the state
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := m.probe(pctx)
	if err != nil {
		m.logger.Debug("Connectivity probe failed", zap.Error(err))
	}
	m.SetOnline(err == nil)
	return err == nil
}

// Run probes every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
