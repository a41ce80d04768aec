package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/storage/memory"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }
func newClock() *fakeClock                   { return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

func TestCache_TTLRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	clock := newClock()
	c := New(store, nil)
	c.SetClock(clock.now)

	require.NoError(t, c.Put(ctx, "students/list?page=1", []byte("page-1"), 30*time.Second))

	clock.advance(29 * time.Second)
	v, ok := c.Get(ctx, "students/list?page=1")
	require.True(t, ok)
	assert.Equal(t, "page-1", string(v))

	clock.advance(time.Second)
	_, ok = c.Get(ctx, "students/list?page=1")
	assert.False(t, ok, "entry must expire at StoredAt+ttl")

	// A reload must not resurrect the expired entry.
	restarted := New(store, nil)
	restarted.SetClock(clock.now)
	n, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, ok = restarted.Get(ctx, "students/list?page=1")
	assert.False(t, ok)

	clock.advance(-time.Hour)
	_, ok = c.Get(ctx, "students/list?page=1")
	assert.False(t, ok, "an evicted entry stays gone even if the clock moves back")
}

func TestCache_PutRejectsNonPositiveTTL(t *testing.T) {
	c := New(nil, nil)
	assert.ErrorIs(t, c.Put(context.Background(), "k", []byte("v"), 0), ErrInvalidTTL)
	assert.ErrorIs(t, c.Put(context.Background(), "k", []byte("v"), -time.Second), ErrInvalidTTL)
	assert.Zero(t, c.Len())
}

func TestCache_ReturnedValueIsACopy(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil)
	require.NoError(t, c.Put(ctx, "k", []byte("abc"), time.Minute))

	v, _ := c.Get(ctx, "k")
	v[0] = 'x'

	again, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}

func TestCache_FillRefusesWrites(t *testing.T) {
	ctx := context.Background()
	c := New(nil, nil)

	write := domain.Operation{Kind: domain.OperationWrite, Key: "alerts/1/ack"}
	assert.ErrorIs(t, c.Fill(ctx, write, []byte("x"), time.Minute), ErrNotCacheable)

	read := domain.Operation{Kind: domain.OperationRead, Key: "students/1"}
	require.NoError(t, c.Fill(ctx, read, []byte("ann"), time.Minute))
	v, ok := c.Get(ctx, "students/1")
	require.True(t, ok)
	assert.Equal(t, "ann", string(v))
}

func TestCache_AfterWriteInvalidatesResource(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	c := New(store, nil)

	require.NoError(t, c.Put(ctx, "students/list?page=1", []byte("1"), time.Minute))
	require.NoError(t, c.Put(ctx, "students/42", []byte("42"), time.Minute))
	require.NoError(t, c.Put(ctx, "students?search=ann", []byte("s"), time.Minute))
	require.NoError(t, c.Put(ctx, "alerts/list", []byte("a"), time.Minute))

	// Persisted by an earlier process but not loaded into this one.
	require.NoError(t, store.Set(ctx, "cache/students/7", []byte(`{}`)))

	write := domain.Operation{Kind: domain.OperationWrite, Key: "students/42/photo"}
	require.NoError(t, c.AfterWrite(ctx, write))

	for _, key := range []string{"students/list?page=1", "students/42", "students?search=ann"} {
		_, ok := c.Get(ctx, key)
		assert.False(t, ok, "key %s should be invalidated", key)
	}
	_, ok := c.Get(ctx, "alerts/list")
	assert.True(t, ok, "other resources survive")

	keys, err := store.ListKeys(ctx, "cache/")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache/alerts/list"}, keys)
}

func TestCache_InvalidateAllKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	c := New(store, nil)

	require.NoError(t, store.Set(ctx, "queue/pending/01J", []byte("{}")))
	require.NoError(t, c.Put(ctx, "students/1", []byte("1"), time.Minute))
	require.NoError(t, c.Put(ctx, "students/2", []byte("2"), time.Minute))

	require.NoError(t, c.InvalidateAll(ctx))
	assert.Zero(t, c.Len())

	keys, err := store.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"queue/pending/01J"}, keys)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	c := New(memory.NewMemoryStorage(), nil)

	require.NoError(t, c.Put(ctx, "students/1", []byte("1"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "students/1"))
	require.NoError(t, c.Invalidate(ctx, "students/1"), "invalidating a missing key is a no-op")

	_, ok := c.Get(ctx, "students/1")
	assert.False(t, ok)
}

func TestCache_SweepAndLoad(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	clock := newClock()
	c := New(store, nil)
	c.SetClock(clock.now)

	require.NoError(t, c.Put(ctx, "students/short", []byte("s"), 10*time.Second))
	require.NoError(t, c.Put(ctx, "students/long", []byte("l"), time.Hour))

	clock.advance(time.Minute)
	removed, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	restarted := New(store, nil)
	restarted.SetClock(clock.now)
	n, err := restarted.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, ok := restarted.Get(ctx, "students/long")
	require.True(t, ok)
	assert.Equal(t, "l", string(v))
}

func TestCache_LoadDropsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	store := memory.NewMemoryStorage()
	require.NoError(t, store.Set(ctx, "cache/students/1", []byte("not json")))

	c := New(store, nil)
	n, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	keys, _ := store.ListKeys(ctx, "cache/")
	assert.Empty(t, keys)
}
