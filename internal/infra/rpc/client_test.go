package rpc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faceguard/internal/cache"
	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
	"github.com/vietddude/faceguard/internal/infra/storage/memory"
)

type countingTransport struct {
	calls int
	err   error
	body  string
	last  domain.Operation
}

func (m *countingTransport) Execute(ctx context.Context, op domain.Operation) ([]byte, error) {
	m.calls++
	m.last = op
	if m.err != nil {
		return nil, m.err
	}
	return []byte(m.body), nil
}

type fakeQueue struct {
	ops []domain.Operation
}

func (f *fakeQueue) Enqueue(ctx context.Context, op domain.Operation) (string, error) {
	f.ops = append(f.ops, op)
	return "01QUEUED", nil
}

func newTestClient(transport Transport, queue Queuer) (*Client, *cache.Cache) {
	executor := NewExecutor(RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, nil)
	executor.SetSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() })
	c := cache.New(memory.NewMemoryStorage(), nil)
	return NewClient(transport, executor, c, queue, Options{DefaultTTL: time.Minute}), c
}

func TestClient_ReadUsesCache(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{body: `{"name":"Ann"}`}
	client, _ := newTestClient(transport, nil)

	op := NewRead("students/1", "/students/1")
	first, err := client.Read(ctx, op, 0)
	require.NoError(t, err)
	second, err := client.Read(ctx, op, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, transport.calls)
}

func TestClient_ReadRejectsWrites(t *testing.T) {
	client, _ := newTestClient(&countingTransport{}, nil)
	_, err := client.Read(context.Background(), NewWrite("alerts/1/ack", "POST", "/alerts/1/ack", nil, ""), 0)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestClient_WriteInvalidatesResource(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{body: `{}`}
	client, c := newTestClient(transport, nil)

	require.NoError(t, c.Put(ctx, "alerts/list", []byte("old"), time.Minute))

	op, err := NewJSONWrite("alerts/3/ack", "/alerts/3/ack", map[string]string{"note": "seen"})
	require.NoError(t, err)
	_, err = client.Write(ctx, op)
	require.NoError(t, err)

	_, ok := c.Get(ctx, "alerts/list")
	assert.False(t, ok)
	assert.Equal(t, op.IdempotencyKey, transport.last.IdempotencyKey)
	assert.JSONEq(t, `{"note":"seen"}`, string(transport.last.Payload))
}

func TestClient_WriteOrQueue(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantQueued bool
		wantErr    bool
	}{
		{"success", nil, false, false},
		{"network error queues", errors.New("connection refused"), true, false},
		{"timeout queues", context.DeadlineExceeded, true, false},
		{"client error surfaces", &provider.StatusError{Status: 422}, false, true},
		{"server error surfaces", &provider.StatusError{Status: 500}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := &fakeQueue{}
			client, _ := newTestClient(&countingTransport{err: tt.err, body: "{}"}, queue)

			op := NewWrite("alerts/1/ack", "POST", "/alerts/1/ack", nil, "")
			sub, err := client.WriteOrQueue(context.Background(), op)

			if tt.wantErr {
				var failure *Failure
				assert.True(t, errors.As(err, &failure))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantQueued, sub.Queued())
			if tt.wantQueued {
				require.Len(t, queue.ops, 1)
				assert.Equal(t, op.IdempotencyKey, queue.ops[0].IdempotencyKey)
			} else {
				assert.Empty(t, queue.ops)
			}
		})
	}
}

func TestNewUploadWrite(t *testing.T) {
	op, err := NewUploadWrite("recognize", "/recognize", "image", "capture.jpg", []byte{1, 2, 3}, nil)
	require.NoError(t, err)

	assert.True(t, op.IsWrite())
	assert.Contains(t, op.ContentType, "multipart/form-data; boundary=")
	assert.NotEmpty(t, op.IdempotencyKey)
}
