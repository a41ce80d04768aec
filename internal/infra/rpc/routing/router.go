package routing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
)

const (
	defaultFailThreshold = 3
	defaultCooldown      = 30 * time.Second
)

// ErrNoProviders is returned by a Router built without endpoints.
var ErrNoProviders = errors.New("no providers configured")

type endpointState struct {
	consecutiveFails int
	openUntil        time.Time
}

// Router fails over between endpoints of the same service (primary first,
// then mirrors). A retryable failure moves the preference to the next
// endpoint; repeated failures open a circuit for a cooldown period.
// Router is itself a provider.Provider, so the executor sees one transport.
type Router struct {
	mu        sync.Mutex
	providers []provider.Provider
	state     []endpointState
	current   int
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewRouter creates a router over providers in preference order.
func NewRouter(providers ...provider.Provider) *Router {
	return &Router{
		providers: providers,
		state:     make([]endpointState, len(providers)),
		threshold: defaultFailThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
}

// SetCircuit overrides the breaker threshold and cooldown.
func (r *Router) SetCircuit(threshold int, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if threshold > 0 {
		r.threshold = threshold
	}
	if cooldown > 0 {
		r.cooldown = cooldown
	}
}

// SetClock replaces the time source.
func (r *Router) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Execute sends op through the preferred available endpoint.
func (r *Router) Execute(ctx context.Context, op domain.Operation) ([]byte, error) {
	idx, p, err := r.pick()
	if err != nil {
		return nil, err
	}

	body, err := p.Execute(ctx, op)
	r.record(idx, err)
	return body, err
}

// Ping tries endpoints starting with the preferred one and switches the
// preference to the first that answers.
func (r *Router) Ping(ctx context.Context) error {
	if len(r.providers) == 0 {
		return ErrNoProviders
	}

	r.mu.Lock()
	start := r.current
	r.mu.Unlock()

	var lastErr error
	for i := range r.providers {
		idx := (start + i) % len(r.providers)
		err := r.providers[idx].Ping(ctx)
		if err == nil {
			r.mu.Lock()
			r.state[idx] = endpointState{}
			r.current = idx
			r.mu.Unlock()
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}

// Current returns the name of the preferred endpoint.
func (r *Router) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		return ""
	}
	return r.providers[r.current].GetName()
}

// GetName returns the name of the preferred endpoint.
func (r *Router) GetName() string {
	return r.Current()
}

// GetHealth reports the preferred endpoint's health.
func (r *Router) GetHealth() provider.HealthStatus {
	r.mu.Lock()
	if len(r.providers) == 0 {
		r.mu.Unlock()
		return provider.HealthStatus{}
	}
	p := r.providers[r.current]
	r.mu.Unlock()
	return p.GetHealth()
}

// Providers returns the endpoints in preference order.
func (r *Router) Providers() []provider.Provider {
	return append([]provider.Provider(nil), r.providers...)
}

// Close closes every endpoint.
func (r *Router) Close() error {
	var errs []error
	for _, p := range r.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

func (r *Router) pick() (int, provider.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.providers)
	if n == 0 {
		return 0, nil, ErrNoProviders
	}

	now := r.now()
	for i := 0; i < n; i++ {
		idx := (r.current + i) % n
		if r.availableLocked(idx, now) {
			r.current = idx
			return idx, r.providers[idx], nil
		}
	}
	// Everything is tripped: keep trying the preferred endpoint.
	return r.current, r.providers[r.current], nil
}

func (r *Router) availableLocked(idx int, now time.Time) bool {
	if now.Before(r.state[idx].openUntil) {
		return false
	}
	h := r.providers[idx].GetHealth()
	if h.MonitorStats != nil && h.MonitorStats.Status == provider.StatusThrottled {
		return false
	}
	return true
}

func (r *Router) record(idx int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &r.state[idx]
	if err == nil {
		*st = endpointState{}
		return
	}
	if !Classify(err).Retryable {
		return
	}

	st.consecutiveFails++
	if st.consecutiveFails >= r.threshold {
		st.openUntil = r.now().Add(r.cooldown)
	}
	if len(r.providers) > 1 && idx == r.current {
		r.current = (idx + 1) % len(r.providers)
	}
}
