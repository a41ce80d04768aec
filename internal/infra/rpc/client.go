package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/faceguard/internal/cache"
	"github.com/vietddude/faceguard/internal/core/domain"
)

// ErrWrongKind is returned when a read is submitted as a write or vice versa.
var ErrWrongKind = errors.New("operation kind does not match call")

// Queuer accepts writes for later replay.
type Queuer interface {
	Enqueue(ctx context.Context, op domain.Operation) (string, error)
}

// Options tunes a Client.
type Options struct {
	// DefaultTTL applies to reads issued with ttl 0.
	DefaultTTL time.Duration
}

// Submission is the outcome of WriteOrQueue.
type Submission struct {
	Value []byte
	// QueuedID is set when the write was deferred to the offline queue.
	QueuedID string
}

// Queued reports whether the write was deferred.
func (s Submission) Queued() bool {
	return s.QueuedID != ""
}

// Client is the high-level interface for calling the remote service.
// This is what application layers should use.
type Client struct {
	transport  Transport
	executor   *Executor
	cache      *cache.Cache
	queue      Queuer
	defaultTTL time.Duration
	logger     *slog.Logger
}

// NewClient creates a client. cache and queue may be nil.
func NewClient(transport Transport, executor *Executor, c *cache.Cache, queue Queuer, opts Options) *Client {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	return &Client{
		transport:  transport,
		executor:   executor,
		cache:      c,
		queue:      queue,
		defaultTTL: opts.DefaultTTL,
		logger:     slog.Default(),
	}
}

// Read serves op from the cache when possible, otherwise executes it with
// retries and caches the response for ttl (DefaultTTL when ttl is 0).
func (c *Client) Read(ctx context.Context, op domain.Operation, ttl time.Duration) ([]byte, error) {
	if !op.IsRead() {
		return nil, ErrWrongKind
	}

	if c.cache != nil {
		if v, ok := c.cache.Get(ctx, op.Key); ok {
			return v, nil
		}
	}

	value, err := c.executor.Execute(ctx, op, c.transport)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if ttl <= 0 {
			ttl = c.defaultTTL
		}
		if err := c.cache.Fill(ctx, op, value, ttl); err != nil {
			c.logger.Warn("Failed to cache response", "key", op.Key, "error", err)
		}
	}
	return value, nil
}

// Write executes op with retries and invalidates the cached reads of its resource.
func (c *Client) Write(ctx context.Context, op domain.Operation) ([]byte, error) {
	if !op.IsWrite() {
		return nil, ErrWrongKind
	}
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}

	value, err := c.executor.Execute(ctx, op, c.transport)
	if err != nil {
		return nil, err
	}
	c.afterWrite(ctx, op)
	return value, nil
}

// WriteOrQueue executes op and, if the service is unreachable, defers it to the
// offline queue instead of failing.
func (c *Client) WriteOrQueue(ctx context.Context, op domain.Operation) (Submission, error) {
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}

	value, err := c.Write(ctx, op)
	if err == nil {
		return Submission{Value: value}, nil
	}

	kind := Classify(err).Kind
	if c.queue == nil || (kind != domain.KindNetwork && kind != domain.KindTimeout) {
		return Submission{}, err
	}

	id, qerr := c.queue.Enqueue(context.WithoutCancel(ctx), op)
	if qerr != nil {
		return Submission{}, errors.Join(err, qerr)
	}
	c.logger.Info("Remote unreachable, write queued", "key", op.Key, "id", id, "kind", kind)
	return Submission{QueuedID: id}, nil
}

// Cache exposes the response cache, which may be nil.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

func (c *Client) afterWrite(ctx context.Context, op domain.Operation) {
	if c.cache == nil {
		return
	}
	if err := c.cache.AfterWrite(ctx, op); err != nil {
		c.logger.Warn("Failed to invalidate cache after write", "key", op.Key, "error", err)
	}
}
