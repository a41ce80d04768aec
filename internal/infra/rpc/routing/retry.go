// Package routing handles error classification, retries, and endpoint failover.
//
// This package contains:
//   - Classify: maps transport errors to outcome kinds
//   - Executor: retry logic with capped exponential backoff
//   - Router: primary/mirror failover with a circuit breaker
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
	"github.com/vietddude/faceguard/internal/metrics"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
}

// RetryPlan describes the wait that follows a failed attempt.
type RetryPlan struct {
	Attempt     int
	MaxAttempts int
	BaseDelay   time.Duration
	NextDelay   time.Duration
}

// Plan returns the plan after the given 1-based attempt.
func (c RetryConfig) Plan(attempt int) RetryPlan {
	delay := c.BaseDelay
	for i := 1; i < attempt && delay < c.MaxDelay; i++ {
		delay *= 2
	}
	return RetryPlan{
		Attempt:     attempt,
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		NextDelay:   min(delay, c.MaxDelay),
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	return retry.WithCappedDuration(c.MaxDelay, retry.NewExponential(c.BaseDelay))
}

// Failure is the terminal error of an operation after classification and retries.
type Failure struct {
	Kind     domain.OutcomeKind
	Status   int
	Message  string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("%s (status %d) after %d attempt(s): %s", f.Kind, f.Status, f.Attempts, f.Message)
	}
	return fmt.Sprintf("%s after %d attempt(s): %s", f.Kind, f.Attempts, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Retryable reports whether a later, independent attempt could succeed.
func (f *Failure) Retryable() bool {
	return f.Kind.Retryable()
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Executor runs an operation with bounded exponential backoff.
// It is the only place retry policy lives.
type Executor struct {
	config RetryConfig
	sleep  SleepFunc
	logger *slog.Logger
}

// NewExecutor creates an executor. Zero fields in cfg fall back to DefaultRetryConfig.
func NewExecutor(cfg RetryConfig, logger *slog.Logger) *Executor {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{config: cfg, sleep: sleepContext, logger: logger}
}

// SetSleep replaces the backoff wait, mainly for tests.
func (e *Executor) SetSleep(fn SleepFunc) {
	e.sleep = fn
}

// Config returns the effective retry configuration.
func (e *Executor) Config() RetryConfig {
	return e.config
}

// Execute runs op against t until success, a non-retryable failure, or the
// attempt budget is spent. Every attempt receives the identical op.
func (e *Executor) Execute(ctx context.Context, op domain.Operation, t provider.Transport) ([]byte, error) {
	resource := op.Resource()
	start := time.Now()
	backoff := e.config.backoff()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(resource, start, Classify(err), attempt-1, err)
		}

		result, err := t.Execute(ctx, op)
		if err == nil {
			metrics.RemoteAttemptsTotal.WithLabelValues(resource, "success").Inc()
			metrics.RemoteCallsTotal.WithLabelValues(resource, "success").Inc()
			metrics.RemoteLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
			return result, nil
		}

		c := Classify(err)
		metrics.RemoteAttemptsTotal.WithLabelValues(resource, string(c.Kind)).Inc()

		if !c.Retryable || attempt >= e.config.MaxAttempts {
			return nil, e.fail(resource, start, c, attempt, err)
		}

		delay, stop := backoff.Next()
		if stop {
			return nil, e.fail(resource, start, c, attempt, err)
		}

		e.logger.Debug("Retrying remote operation",
			"key", op.Key,
			"attempt", attempt,
			"max_attempts", e.config.MaxAttempts,
			"kind", c.Kind,
			"delay", delay,
		)

		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.fail(resource, start, Classify(err), attempt, err)
		}
	}
}

func (e *Executor) fail(resource string, start time.Time, c Classification, attempts int, err error) *Failure {
	metrics.RemoteCallsTotal.WithLabelValues(resource, string(c.Kind)).Inc()
	metrics.RemoteLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	return &Failure{
		Kind:     c.Kind,
		Status:   c.Status,
		Message:  c.Message,
		Attempts: attempts,
		Err:      err,
	}
}

// Bind returns a Transport that runs every operation through e against t.
func (e *Executor) Bind(t provider.Transport) provider.Transport {
	return provider.TransportFunc(func(ctx context.Context, op domain.Operation) ([]byte, error) {
		return e.Execute(ctx, op, t)
	})
}
