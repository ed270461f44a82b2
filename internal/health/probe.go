// Package health tracks conversation backend reachability and exposes it over
// the standard gRPC health protocol.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/debate-panel/internal/gateway"
	"github.com/ashureev/debate-panel/internal/metrics"
)

const probeTimeout = 5 * time.Second

// Prober periodically checks the backend and reports transitions.
type Prober struct {
	checker  gateway.HealthChecker
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu       sync.Mutex
	up       bool
	known    bool
	onChange []func(up bool)
}

// NewProber creates a prober. Register listeners with OnChange before Start.
func NewProber(checker gateway.HealthChecker, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{
		checker:  checker,
		interval: interval,
		metrics:  m,
		logger:   logger.With("component", "health"),
	}
}

// OnChange registers fn to be called whenever reachability flips, and once
// for the first probe.
func (p *Prober) OnChange(fn func(up bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// Up returns the result of the last probe.
func (p *Prober) Up() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.up
}

// Check runs one probe and returns whether the backend answered.
func (p *Prober) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := p.checker.Health(probeCtx)
	up := err == nil
	p.metrics.SetGatewayUp(up)

	p.mu.Lock()
	changed := !p.known || p.up != up
	p.up, p.known = up, true
	listeners := append([]func(bool){}, p.onChange...)
	p.mu.Unlock()

	if changed {
		if up {
			p.logger.Info("Conversation backend reachable")
		} else {
			p.logger.Warn("Conversation backend unreachable", "error", err)
		}
		for _, fn := range listeners {
			fn(up)
		}
	}
	return up
}

// Start probes once immediately and then every interval until ctx is done.
func (p *Prober) Start(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	go func() {
		defer ticker.Stop()
		p.logger.Info("Health prober started", "interval", p.interval)

		for {
			select {
			case <-ticker.C:
				p.Check(ctx)
			case <-ctx.Done():
				p.logger.Info("Health prober shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
