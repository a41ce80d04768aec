// Package paging implements the paginated, searchable list controller.
//
// A filter change resets the list immediately and schedules the first page
// after a debounce window. Responses are applied only if they belong to the
// current filter generation, so a slow response for an old search can never
// overwrite a newer one.
package paging

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/metrics"
)

// ErrClosed is returned by intents issued after Close.
var ErrClosed = errors.New("controller closed")

// DefaultDebounce is the quiescence window applied to filter changes.
const DefaultDebounce = 300 * time.Millisecond

// PageSource fetches one page of a listing.
type PageSource interface {
	FetchPage(ctx context.Context, filter Filter, page int) (domain.Page, error)
}

// Snapshot is the observable state of the controller.
type Snapshot struct {
	domain.PageState
	Loading bool
	Err     error
}

// Scheduler runs f after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Controller accumulates pages for the current filter.
type Controller struct {
	source   PageSource
	debounce time.Duration
	schedule Scheduler
	logger   *slog.Logger

	mu          sync.Mutex
	filter      Filter
	state       domain.PageState
	loading     bool
	err         error
	gen         uint64
	stopTimer   func() bool
	cancelFetch context.CancelFunc
	subs        []chan Snapshot
	closed      bool

	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewController creates a controller for the empty filter.
func NewController(source PageSource, debounce time.Duration, logger *slog.Logger) *Controller {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		source:     source,
		debounce:   debounce,
		schedule:   afterFunc,
		logger:     logger,
		state:      domain.PageState{Page: 1, Fingerprint: Filter{}.Fingerprint()},
		baseCtx:    ctx,
		cancelBase: cancel,
	}
}

// SetScheduler replaces the debounce timer, mainly for tests.
func (c *Controller) SetScheduler(s Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedule = s
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest snapshot, and a
// function that stops the subscription.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- c.snapshotLocked()
	c.subs = append(c.subs, ch)

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if i := slices.Index(c.subs, ch); i >= 0 {
			c.subs = slices.Delete(c.subs, i, i+1)
			close(ch)
		}
	}
}

// SetFilter switches to f. The list is reset at once and page 1 is requested
// after the debounce window unless another change arrives first.
func (c *Controller) SetFilter(f Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || !c.resetLocked(f) {
		return
	}

	gen := c.gen
	c.stopTimer = c.schedule(c.debounce, func() {
		c.loadFirstPage(gen)
	})
	c.publishLocked()
}

// Apply switches to f and loads page 1 immediately, bypassing the debounce.
func (c *Controller) Apply(ctx context.Context, f Filter) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.resetLocked(f) {
		c.publishLocked()
	}
	c.mu.Unlock()

	_, err := c.Refresh(ctx)
	return err
}

// resetLocked moves to a new filter generation. It reports false if f is the
// current filter.
func (c *Controller) resetLocked(f Filter) bool {
	fp := f.Fingerprint()
	if fp == c.state.Fingerprint && c.gen > 0 {
		return false
	}

	c.gen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	if c.cancelFetch != nil {
		c.cancelFetch()
		c.cancelFetch = nil
	}

	c.filter = f
	c.state = domain.PageState{Page: 1, Fingerprint: fp}
	c.loading = false
	c.err = nil
	return true
}

func (c *Controller) loadFirstPage(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || c.loading {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(c.baseCtx)
	filter := c.filter
	c.begin(cancel)
	c.mu.Unlock()

	defer cancel()
	page, err := c.source.FetchPage(ctx, filter, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(gen) {
		return
	}
	c.finish()
	if err != nil {
		c.err = err
		c.logger.Debug("First page failed", "fingerprint", c.state.Fingerprint, "error", err)
	} else {
		c.state.Items = page.Items
		c.state.Page = 1
		c.state.TotalPages = page.TotalPages
	}
	c.publishLocked()
}

// LoadNextPage appends the next page. It reports false without fetching when
// a load is already in flight or the last page has been reached.
func (c *Controller) LoadNextPage(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.loading || !c.state.HasMore() {
		c.mu.Unlock()
		return false, nil
	}

	gen := c.gen
	filter := c.filter
	next := c.state.Page + 1
	fetchCtx, cancel := context.WithCancel(ctx)
	c.begin(cancel)
	c.mu.Unlock()

	defer cancel()
	page, err := c.source.FetchPage(fetchCtx, filter, next)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(gen) {
		return false, nil
	}
	c.finish()
	if err != nil {
		c.err = err
		c.publishLocked()
		return false, err
	}

	c.state.Items = append(slices.Clip(c.state.Items), page.Items...)
	c.state.Page = next
	c.state.TotalPages = page.TotalPages
	c.err = nil
	c.publishLocked()
	return true, nil
}

// Refresh re-fetches page 1 for the current filter and replaces the list on
// success. On failure the previous items stay visible alongside the error.
func (c *Controller) Refresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrClosed
	}
	if c.loading {
		c.mu.Unlock()
		return false, nil
	}
	if c.gen == 0 {
		c.gen = 1
	}
	if c.stopTimer != nil {
		// The pending debounced load would fetch the same page.
		c.stopTimer()
		c.stopTimer = nil
	}

	gen := c.gen
	filter := c.filter
	fetchCtx, cancel := context.WithCancel(ctx)
	c.begin(cancel)
	c.mu.Unlock()

	defer cancel()
	page, err := c.source.FetchPage(fetchCtx, filter, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.current(gen) {
		return false, nil
	}
	c.finish()
	if err != nil {
		c.err = err
		c.publishLocked()
		return false, err
	}

	c.state.Items = page.Items
	c.state.Page = 1
	c.state.TotalPages = page.TotalPages
	c.err = nil
	c.publishLocked()
	return true, nil
}

// Close cancels pending work and closes every subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	c.gen++
	if c.stopTimer != nil {
		c.stopTimer()
	}
	c.cancelBase()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

func (c *Controller) begin(cancel context.CancelFunc) {
	c.loading = true
	c.cancelFetch = cancel
	c.publishLocked()
}

func (c *Controller) finish() {
	c.loading = false
	c.cancelFetch = nil
}

// current reports whether a response issued under gen may still be applied.
func (c *Controller) current(gen uint64) bool {
	if gen == c.gen && !c.closed {
		return true
	}
	metrics.StaleResponsesTotal.Inc()
	c.logger.Debug("Discarding response for superseded filter", "fingerprint", c.state.Fingerprint)
	return false
}

func (c *Controller) snapshotLocked() Snapshot {
	state := c.state
	state.Items = slices.Clone(c.state.Items)
	return Snapshot{PageState: state, Loading: c.loading, Err: c.err}
}

func (c *Controller) publishLocked() {
	s := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
