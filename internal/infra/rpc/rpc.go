// Package rpc provides the resilient client for the remote recognition service.
//
// This package composes:
//   - a single-attempt transport (provider.HTTPProvider)
//   - bounded retry with exponential backoff (routing.Executor)
//   - a TTL response cache for reads (cache.Cache)
//   - an offline queue for writes issued while unreachable (offline.Queue)
//
// # Quick Start
//
//	transport := rpc.NewHTTPProvider("remote", baseURL, provider.HTTPOptions{Timeout: 30 * time.Second})
//	executor := rpc.NewExecutor(rpc.DefaultRetryConfig, logger)
//	client := rpc.NewClient(transport, executor, responseCache, queue, rpc.Options{DefaultTTL: 5 * time.Minute})
//
//	body, err := client.Read(ctx, rpc.NewRead("students/42", "/students/42"), 0)
//
// # Package Structure
//
//   - provider/ - HTTP transport, status errors, monitoring
//   - routing/  - error classification and retry policy
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"log/slog"

	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
	"github.com/vietddude/faceguard/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Transport performs exactly one attempt of an operation.
type Transport = provider.Transport

// Provider is a named transport with health reporting.
type Provider = provider.Provider

// HTTPProvider implements Provider over HTTP.
type HTTPProvider = provider.HTTPProvider

// StatusError is a decoded non-success response.
type StatusError = provider.StatusError

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// NewHTTPProvider creates a new HTTP provider.
func NewHTTPProvider(name, baseURL string, opts provider.HTTPOptions) *HTTPProvider {
	return provider.NewHTTPProvider(name, baseURL, opts)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// Executor runs operations with bounded exponential backoff.
type Executor = routing.Executor

// Failure is the terminal, classified error of an operation.
type Failure = routing.Failure

// Classification is the normalized view of a failed attempt.
type Classification = routing.Classification

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewExecutor creates a retry executor.
func NewExecutor(cfg RetryConfig, logger *slog.Logger) *Executor {
	return routing.NewExecutor(cfg, logger)
}

// Router fails over between endpoints of the service.
type Router = routing.Router

// NewRouter creates a router over providers in preference order.
func NewRouter(providers ...Provider) *Router {
	return routing.NewRouter(providers...)
}

// Classify maps any error to an outcome kind.
var Classify = routing.Classify
