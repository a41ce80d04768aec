// Package provider implements the transport to the remote recognition service.
//
// This package contains:
//   - Transport: the single-call boundary used by the retry executor
//   - HTTPProvider: JSON/multipart over HTTP implementation
//   - ProviderMonitor: latency and throttle tracking
//   - StatusError: decoded non-2xx responses
package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/faceguard/internal/core/domain"
)

// Transport performs exactly one attempt of an operation.
type Transport interface {
	Execute(ctx context.Context, op domain.Operation) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, op domain.Operation) ([]byte, error)

func (f TransportFunc) Execute(ctx context.Context, op domain.Operation) ([]byte, error) {
	return f(ctx, op)
}

// Provider is a named transport with health reporting.
type Provider interface {
	Transport

	// GetName returns provider identifier
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// Ping checks that the service answers at all
	Ping(ctx context.Context) error

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// StatusError is a response that arrived with a non-success status.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}
