package health

import (
	"context"

	"github.com/vietddude/faceguard/internal/connectivity"
	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
)

// ConnectivitySource reports reachability of the remote service.
type ConnectivitySource interface {
	Status() connectivity.Status
}

// QueueSource reports the offline queue contents.
type QueueSource interface {
	Pending() []domain.QueueItem
	DeadLettered() []domain.QueueItem
}

// CacheSource reports the response cache size.
type CacheSource interface {
	Len() int
}

// ProviderSource reports transport health.
type ProviderSource interface {
	GetHealth() provider.HealthStatus
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	conn     ConnectivitySource
	queue    QueueSource
	cache    CacheSource
	provider ProviderSource
}

// NewMonitor creates a new health monitor. Any source may be nil.
func NewMonitor(conn ConnectivitySource, queue QueueSource, cache CacheSource, p ProviderSource) *Monitor {
	return &Monitor{conn: conn, queue: queue, cache: cache, provider: p}
}

// CheckHealth builds a report from the current component state.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	report := HealthReport{SystemStatus: StatusHealthy, Remote: RemoteHealth{Online: true}}

	if m.conn != nil {
		st := m.conn.Status()
		report.Remote.Online = st.Online || !st.Checked
		report.Remote.LastError = st.LastError
	}
	if m.provider != nil {
		h := m.provider.GetHealth()
		report.Remote.Provider = &h
	}
	if m.queue != nil {
		report.Queue.Pending = len(m.queue.Pending())
		report.Queue.DeadLettered = len(m.queue.DeadLettered())
	}
	if m.cache != nil {
		report.CacheEntries = m.cache.Len()
	}

	// Evaluate Status
	switch {
	case !report.Remote.Online:
		report.SystemStatus = StatusCritical
	case report.Queue.DeadLettered > 0 || report.Queue.Pending > 0:
		report.SystemStatus = StatusDegraded
	case report.Remote.Provider != nil && report.Remote.Provider.MonitorStats != nil &&
		report.Remote.Provider.MonitorStats.Status != provider.StatusHealthy:
		report.SystemStatus = StatusDegraded
	}

	return report
}
