// Package connectivity watches reachability of the remote backend and
// notifies subscribers when the device comes back online.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/binlift/binlift/internal/logging"
	"github.com/binlift/binlift/internal/netx"
)

// Probe answers a single point-in-time reachability question.
type Probe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// HTTPProbe checks reachability with a HEAD request against a health URL.
type HTTPProbe struct {
	URL string
}

func (p HTTPProbe) Probe(ctx context.Context) error {
	return netx.ProbeURL(ctx, p.URL)
}

// Monitor polls a Probe and tracks online/offline mode. Subscribers are
// notified only on the offline->online edge; going offline is observed but
// triggers nothing.
type Monitor struct {
	probe        Probe
	interval     time.Duration
	probeTimeout time.Duration
	log          logging.Logger

	mu        sync.Mutex
	online    bool
	callbacks []func(ctx context.Context)
}

// NewMonitor builds a monitor. The device is considered offline until the
// first successful probe.
func NewMonitor(probe Probe, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		probe:        probe,
		interval:     interval,
		probeTimeout: 3 * time.Second,
		log:          log,
	}
}

// IsOnline reports the last observed mode without blocking.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// CheckNow runs a single probe synchronously and returns the resulting
// mode. Useful for one-shot flows that cannot wait for the polling loop.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	m.check(ctx)
	return m.IsOnline()
}

// OnReachable registers a callback fired on every offline->online edge.
// Callbacks run on the monitor goroutine; long work should be handed off.
func (m *Monitor) OnReachable(cb func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Run probes once immediately (so a device starting online syncs right
// away), then keeps polling until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.probe.Probe(probeCtx)
	cancel()

	m.setOnline(ctx, err == nil)
}

func (m *Monitor) setOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var cbs []func(ctx context.Context)
	if online && !wasOnline {
		cbs = append(cbs, m.callbacks...)
	}
	m.mu.Unlock()

	if online == wasOnline {
		return
	}

	if online {
		m.log.Info(ctx, "connectivity restored")
		for _, cb := range cbs {
			cb(ctx)
		}
	} else {
		m.log.Info(ctx, "connectivity lost")
	}
}
