package paging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faceguard/internal/core/domain"
)

// manualScheduler records debounced callbacks so tests decide when they fire.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*task
}

type task struct {
	f       func()
	stopped bool
	fired   bool
}

func (m *manualScheduler) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &task{f: f}
	m.tasks = append(m.tasks, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// fireLatest runs the most recent live callback synchronously.
func (m *manualScheduler) fireLatest() bool {
	m.mu.Lock()
	var live *task
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			live = t
		}
	}
	if live != nil {
		live.fired = true
	}
	m.mu.Unlock()

	if live == nil {
		return false
	}
	live.f()
	return true
}

func (m *manualScheduler) live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type request struct {
	fingerprint string
	page        int
}

// fakeSource serves pages of the form "<search>-<page>-<i>". A request can be
// held until released to model a slow response.
type fakeSource struct {
	mu         sync.Mutex
	totalPages int
	requests   []request
	hold       map[request]chan struct{}
	entered    map[request]chan struct{}
	fail       map[request]error
}

func newFakeSource(totalPages int) *fakeSource {
	return &fakeSource{
		totalPages: totalPages,
		hold:       make(map[request]chan struct{}),
		entered:    make(map[request]chan struct{}),
		fail:       make(map[request]error),
	}
}

// holdRequest blocks the given request until the returned release is called.
func (s *fakeSource) holdRequest(fp string, page int) (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := request{fp, page}
	h := make(chan struct{})
	e := make(chan struct{})
	s.hold[r] = h
	s.entered[r] = e
	return e, func() { close(h) }
}

func (s *fakeSource) FetchPage(ctx context.Context, filter Filter, page int) (domain.Page, error) {
	r := request{filter.Fingerprint(), page}

	s.mu.Lock()
	s.requests = append(s.requests, r)
	h, held := s.hold[r]
	e := s.entered[r]
	err := s.fail[r]
	total := s.totalPages
	s.mu.Unlock()

	if held {
		close(e)
		<-h // responds even if ctx was cancelled, like a server that already answered
	}
	if err != nil {
		return domain.Page{}, err
	}

	items := make([]domain.Item, 2)
	for i := range items {
		items[i] = domain.Item{ID: fmt.Sprintf("%s-%d-%d", filter.Search, page, i)}
	}
	return domain.Page{Items: items, Page: page, TotalPages: total}, nil
}

func (s *fakeSource) count(fp string, page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.fingerprint == fp && r.page == page {
			n++
		}
	}
	return n
}

func (s *fakeSource) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func newTestController(source PageSource) (*Controller, *manualScheduler) {
	sched := &manualScheduler{}
	c := NewController(source, time.Second, nil)
	c.SetScheduler(sched.schedule)
	return c, sched
}

func ids(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFilter_Fingerprint(t *testing.T) {
	a := Filter{Search: " ann ", Params: map[string]string{"class": "10A", "status": "active"}}
	b := Filter{Search: "ann", Params: map[string]string{"status": "active", "class": "10A", "empty": ""}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "class=10A&search=ann&status=active", a.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), Filter{Search: "anna"}.Fingerprint())
	assert.Equal(t, "", Filter{}.Fingerprint())
}

func TestSetFilter_DebouncesKeystrokes(t *testing.T) {
	source := newFakeSource(3)
	c, sched := newTestController(source)
	defer c.Close()

	c.SetFilter(Filter{Search: "a"})
	c.SetFilter(Filter{Search: "an"})
	c.SetFilter(Filter{Search: "ann"})

	assert.Equal(t, 1, sched.live(), "earlier keystrokes are discarded, not delayed")
	assert.Zero(t, source.total(), "nothing is fetched inside the window")

	snap := c.Snapshot()
	assert.Equal(t, "search=ann", snap.Fingerprint)
	assert.Empty(t, snap.Items)
	assert.Equal(t, 1, snap.Page)

	require.True(t, sched.fireLatest())
	assert.Equal(t, 1, source.total())
	assert.Equal(t, 1, source.count("search=ann", 1))

	snap = c.Snapshot()
	assert.Equal(t, []string{"ann-1-0", "ann-1-1"}, ids(snap.Items))
	assert.Equal(t, 3, snap.TotalPages)
}

func TestSetFilter_SameFilterIsNoop(t *testing.T) {
	source := newFakeSource(1)
	c, sched := newTestController(source)
	defer c.Close()

	c.SetFilter(Filter{Search: "ann"})
	sched.fireLatest()
	c.SetFilter(Filter{Search: "ann "})

	assert.Zero(t, sched.live())
	assert.Len(t, c.Snapshot().Items, 2)
}

func TestSetFilter_StaleResponseDiscarded(t *testing.T) {
	source := newFakeSource(2)
	c, sched := newTestController(source)
	defer c.Close()

	enteredA, releaseA := source.holdRequest("search=a", 1)

	c.SetFilter(Filter{Search: "a"})
	doneA := make(chan struct{})
	go func() {
		sched.fireLatest()
		close(doneA)
	}()
	<-enteredA

	// B is issued before A's page 1 returns.
	c.SetFilter(Filter{Search: "b"})
	assert.Equal(t, "search=b", c.Snapshot().Fingerprint)
	assert.Empty(t, c.Snapshot().Items)

	require.True(t, sched.fireLatest())
	assert.Equal(t, []string{"b-1-0", "b-1-1"}, ids(c.Snapshot().Items))

	// A's response arrives last and must not win.
	releaseA()
	<-doneA

	snap := c.Snapshot()
	assert.Equal(t, "search=b", snap.Fingerprint)
	assert.Equal(t, []string{"b-1-0", "b-1-1"}, ids(snap.Items))
	assert.False(t, snap.Loading)
}

func TestSetFilter_CancelsInFlightFetch(t *testing.T) {
	var gotCtx context.Context
	entered := make(chan struct{})
	source := sourceFunc(func(ctx context.Context, f Filter, page int) (domain.Page, error) {
		if f.Search == "slow" {
			gotCtx = ctx
			close(entered)
			<-ctx.Done()
			return domain.Page{}, ctx.Err()
		}
		return domain.Page{Page: page, TotalPages: 1}, nil
	})
	c, sched := newTestController(source)
	defer c.Close()

	c.SetFilter(Filter{Search: "slow"})
	done := make(chan struct{})
	go func() {
		sched.fireLatest()
		close(done)
	}()
	<-entered

	c.SetFilter(Filter{Search: "fast"})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}
	assert.ErrorIs(t, gotCtx.Err(), context.Canceled)
	assert.NoError(t, c.Snapshot().Err, "a cancelled stale fetch must not surface an error")
}

func TestLoadNextPage_SingleFlight(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(3)
	c, _ := newTestController(source)
	defer c.Close()

	require.NoError(t, c.Apply(ctx, Filter{}))
	snap := c.Snapshot()
	require.Equal(t, 1, snap.Page)
	require.Equal(t, 3, snap.TotalPages)

	entered, release := source.holdRequest("", 2)

	var wg sync.WaitGroup
	var firstLoaded bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstLoaded, _ = c.LoadNextPage(ctx)
	}()
	<-entered

	loaded, err := c.LoadNextPage(ctx)
	assert.NoError(t, err)
	assert.False(t, loaded, "second call while a load is in flight is a no-op")

	release()
	wg.Wait()

	assert.True(t, firstLoaded)
	assert.Equal(t, 1, source.count("", 2))
	assert.Zero(t, source.count("", 3))

	snap = c.Snapshot()
	assert.Equal(t, 2, snap.Page)
	assert.Len(t, snap.Items, 4)
}

func TestLoadNextPage_StopsAtLastPage(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(2)
	c, _ := newTestController(source)
	defer c.Close()

	require.NoError(t, c.Apply(ctx, Filter{Search: "x"}))

	loaded, err := c.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)

	loaded, err = c.LoadNextPage(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, 2, source.total())
}

func TestLoadNextPage_RefusedBeforeFirstPage(t *testing.T) {
	source := newFakeSource(5)
	c, _ := newTestController(source)
	defer c.Close()

	c.SetFilter(Filter{Search: "x"})
	loaded, err := c.LoadNextPage(context.Background())
	assert.NoError(t, err)
	assert.False(t, loaded)
	assert.Zero(t, source.total())
}

func TestRefresh_KeepsStaleItemsOnFailure(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(2)
	c, _ := newTestController(source)
	defer c.Close()

	require.NoError(t, c.Apply(ctx, Filter{Search: "ann"}))
	_, err := c.LoadNextPage(ctx)
	require.NoError(t, err)
	require.Len(t, c.Snapshot().Items, 4)

	boom := errors.New("network down")
	source.mu.Lock()
	source.fail[request{"search=ann", 1}] = boom
	source.mu.Unlock()

	refreshed, err := c.Refresh(ctx)
	assert.False(t, refreshed)
	assert.ErrorIs(t, err, boom)

	snap := c.Snapshot()
	assert.Len(t, snap.Items, 4, "items are not blanked")
	assert.ErrorIs(t, snap.Err, boom)

	source.mu.Lock()
	delete(source.fail, request{"search=ann", 1})
	source.mu.Unlock()

	refreshed, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, refreshed)

	snap = c.Snapshot()
	assert.Equal(t, []string{"ann-1-0", "ann-1-1"}, ids(snap.Items))
	assert.Equal(t, 1, snap.Page)
	assert.NoError(t, snap.Err)
}

func TestSubscribe_DeliversLatest(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource(3)
	c, _ := newTestController(source)

	ch, cancel := c.Subscribe()
	defer cancel()

	require.NoError(t, c.Apply(ctx, Filter{Search: "a"}))
	_, err := c.LoadNextPage(ctx)
	require.NoError(t, err)

	snap := <-ch
	assert.Equal(t, 2, snap.Page)
	assert.Len(t, snap.Items, 4)

	c.Close()
	_, open := <-ch
	assert.False(t, open)

	_, err = c.LoadNextPage(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

type sourceFunc func(ctx context.Context, f Filter, page int) (domain.Page, error)

func (fn sourceFunc) FetchPage(ctx context.Context, f Filter, page int) (domain.Page, error) {
	return fn(ctx, f, page)
}
