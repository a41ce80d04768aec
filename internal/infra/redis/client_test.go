package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faceguard/internal/infra/storage"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore(Config{URL: "redis://" + mr.Addr(), Namespace: "fg-test"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s, mr
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, s.Set(ctx, "cache/students?page=1", []byte("p1")))
	assert.True(t, mr.Exists("fg-test:cache/students?page=1"))

	v, err := s.Get(ctx, "cache/students?page=1")
	require.NoError(t, err)
	assert.Equal(t, []byte("p1"), v)

	require.NoError(t, s.Remove(ctx, "cache/students?page=1"))
	_, err = s.Get(ctx, "cache/students?page=1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListKeysSortedAndEscaped(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Set(ctx, "queue/pending/02", []byte("2")))
	require.NoError(t, s.Set(ctx, "queue/pending/01", []byte("1")))
	require.NoError(t, s.Set(ctx, "queue/dead/03", []byte("3")))
	require.NoError(t, s.Set(ctx, "cache/students?page=1", []byte("c")))
	require.NoError(t, s.Set(ctx, "cache/studentsXpage=1", []byte("c")))

	keys, err := s.ListKeys(ctx, "queue/pending/")
	require.NoError(t, err)
	assert.Equal(t, []string{"queue/pending/01", "queue/pending/02"}, keys)

	keys, err = s.ListKeys(ctx, "cache/students?")
	require.NoError(t, err)
	assert.Equal(t, []string{"cache/students?page=1"}, keys)
}

func TestStore_ClearOnlyNamespace(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)

	require.NoError(t, mr.Set("foreign", "keep"))
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))

	require.NoError(t, s.Clear(ctx))

	keys, err := s.ListKeys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.True(t, mr.Exists("foreign"))
}
