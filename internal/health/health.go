// Package health provides system health monitoring and status reporting.
package health

import "github.com/vietddude/faceguard/internal/infra/rpc/provider"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// RemoteHealth describes reachability of the recognition service.
type RemoteHealth struct {
	Online    bool                   `json:"online"`
	LastError string                 `json:"last_error,omitempty"`
	Provider  *provider.HealthStatus `json:"provider,omitempty"`
}

// QueueHealth describes the offline queue.
type QueueHealth struct {
	Pending      int `json:"pending"`
	DeadLettered int `json:"dead_lettered"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus `json:"system_status"`
	Remote       RemoteHealth `json:"remote"`
	Queue        QueueHealth  `json:"queue"`
	CacheEntries int          `json:"cache_entries"`
}
