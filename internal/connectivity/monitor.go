// Package connectivity detects when the remote service becomes reachable
// again and triggers the registered restore hooks (queue replay).
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/faceguard/internal/metrics"
)

// Prober checks that the remote service answers.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config holds probe settings.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Status is the last known reachability.
type Status struct {
	Online     bool      `json:"online"`
	Checked    bool      `json:"checked"`
	LastChange time.Time `json:"last_change"`
	LastProbe  time.Time `json:"last_probe"`
	LastError  string    `json:"last_error,omitempty"`
}

// Monitor probes the service periodically.
type Monitor struct {
	prober Prober
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	status    Status
	onRestore []func(ctx context.Context)
}

// NewMonitor creates a monitor. Zero config values get defaults.
func NewMonitor(prober Prober, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{prober: prober, cfg: cfg, logger: logger}
}

// OnRestore registers fn to run whenever the service becomes reachable,
// including the first successful probe after start.
func (m *Monitor) OnRestore(fn func(ctx context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = append(m.onRestore, fn)
}

// Start probes immediately and then on every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.Probe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe runs a single check and reports whether the service is reachable.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	err := m.prober.Ping(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return m.Online()
	}

	now := time.Now()
	online := err == nil

	m.mu.Lock()
	restored := online && (!m.status.Online || !m.status.Checked)
	if online != m.status.Online || !m.status.Checked {
		m.status.LastChange = now
	}
	m.status.Online = online
	m.status.Checked = true
	m.status.LastProbe = now
	m.status.LastError = ""
	if err != nil {
		m.status.LastError = err.Error()
	}
	hooks := append([]func(context.Context){}, m.onRestore...)
	m.mu.Unlock()

	if online {
		metrics.RemoteOnline.Set(1)
	} else {
		metrics.RemoteOnline.Set(0)
	}

	if restored {
		m.logger.Info("Remote service reachable")
		for _, fn := range hooks {
			fn(ctx)
		}
	} else if !online {
		m.logger.Debug("Remote service unreachable", "error", err)
	}
	return online
}

// Online reports the last known reachability.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status.Online
}

// Status returns the last probe result.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
