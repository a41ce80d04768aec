// Package offline implements the durable queue of writes issued while the
// remote service was unreachable.
//
// Items are kept in the durable store under two namespaces:
//
//	queue/pending/<ulid>  waiting for replay (or in flight)
//	queue/dead/<ulid>     dead-lettered, kept for inspection and manual retry
//
// ULIDs sort by enqueue time, so listing the pending namespace yields FIFO order.
package offline

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
	"github.com/vietddude/faceguard/internal/infra/rpc/routing"
	"github.com/vietddude/faceguard/internal/infra/storage"
	"github.com/vietddude/faceguard/internal/metrics"
)

var (
	// ErrNotWrite is returned when a read operation is enqueued
	ErrNotWrite = errors.New("only write operations can be queued")
	// ErrItemNotFound is returned when an id is not in the expected namespace
	ErrItemNotFound = errors.New("queue item not found")
)

const (
	pendingPrefix = "queue/pending/"
	deadPrefix    = "queue/dead/"

	// DefaultMaxRetries is the number of failed replays before an item is dead-lettered.
	DefaultMaxRetries = 5
)

// Invalidator drops cached reads made stale by a successful write.
type Invalidator interface {
	AfterWrite(ctx context.Context, op domain.Operation) error
}

// ReplayResult lists the items resolved by one replay.
type ReplayResult struct {
	Succeeded    []string `json:"succeeded"`
	DeadLettered []string `json:"dead_lettered"`
}

// Config holds queue settings.
type Config struct {
	MaxRetries int
}

// Queue is the process-wide offline write queue.
type Queue struct {
	mu      sync.Mutex
	pending []domain.QueueItem
	dead    []domain.QueueItem
	entropy io.Reader

	store      storage.Store
	send       provider.Transport
	cache      Invalidator
	maxRetries int
	group      singleflight.Group
	runMu      sync.Mutex
	run        *replayRun
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a queue. send is normally a retry-bound transport
// (routing.Executor.Bind). cache may be nil.
func New(cfg Config, store storage.Store, send provider.Transport, cache Invalidator, logger *slog.Logger) *Queue {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		entropy:    ulid.Monotonic(rand.Reader, 0),
		store:      store,
		send:       send,
		cache:      cache,
		maxRetries: cfg.MaxRetries,
		now:        time.Now,
		logger:     logger,
	}
}

// Load restores the queue from the store. A crash between writing the dead
// copy of an item and removing its pending copy leaves both; the dead copy wins.
func (q *Queue) Load(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dead, err := q.readNamespace(ctx, deadPrefix)
	if err != nil {
		return err
	}
	pending, err := q.readNamespace(ctx, pendingPrefix)
	if err != nil {
		return err
	}

	deadIDs := make(map[string]struct{}, len(dead))
	for _, item := range dead {
		deadIDs[item.ID] = struct{}{}
	}

	kept := pending[:0]
	for _, item := range pending {
		if _, ok := deadIDs[item.ID]; ok {
			if err := q.store.Remove(ctx, pendingPrefix+item.ID); err != nil {
				return fmt.Errorf("repair queue item %s: %w", item.ID, err)
			}
			continue
		}
		if item.Status == domain.QueueItemInFlight {
			// Interrupted mid-flight; the idempotency key makes a resend safe.
			item.Status = domain.QueueItemPending
			if err := q.persist(ctx, pendingPrefix, item); err != nil {
				return err
			}
		}
		kept = append(kept, item)
	}

	q.pending = kept
	q.dead = dead
	q.updateGauges()

	q.logger.Info("Offline queue loaded", "pending", len(q.pending), "dead_lettered", len(q.dead))
	return nil
}

// Enqueue durably appends a write and returns its id.
func (q *Queue) Enqueue(ctx context.Context, op domain.Operation) (string, error) {
	if !op.IsWrite() {
		return "", ErrNotWrite
	}
	if op.IdempotencyKey == "" {
		op.IdempotencyKey = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	id, err := ulid.New(ulid.Timestamp(now), q.entropy)
	if err != nil {
		return "", fmt.Errorf("generate queue id: %w", err)
	}

	item := domain.QueueItem{
		ID:         id.String(),
		Operation:  op,
		EnqueuedAt: now,
		Status:     domain.QueueItemPending,
	}
	if err := q.persist(ctx, pendingPrefix, item); err != nil {
		return "", err
	}

	q.pending = append(q.pending, item)
	q.updateGauges()

	q.logger.Debug("Queued offline write", "id", item.ID, "key", op.Key)
	return item.ID, nil
}

// Pending returns the queued items in replay order.
func (q *Queue) Pending() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pending)
}

// DeadLettered returns the items that exhausted their retries or were rejected.
func (q *Queue) DeadLettered() []domain.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.dead)
}

// replayRun is the context shared by every caller of one replay. It is
// cancelled only when the last waiting caller gives up.
type replayRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Replay sends every pending item in FIFO order. Concurrent calls share a
// single run and its result. A caller whose ctx ends returns ctx.Err()
// without stopping the run for the others; the run stops once no caller is
// left waiting, and that last caller gets the partial result.
func (q *Queue) Replay(ctx context.Context) (ReplayResult, error) {
	run := q.joinRun(ctx)
	ch := q.group.DoChan("replay", func() (any, error) {
		return q.replay(run.ctx)
	})

	select {
	case res := <-ch:
		q.leaveRun(run)
		if res.Shared {
			q.logger.Debug("Joined in-progress replay")
		}
		result, _ := res.Val.(ReplayResult)
		return result, res.Err
	case <-ctx.Done():
		if !q.leaveRun(run) {
			return ReplayResult{}, ctx.Err()
		}
		res := <-ch
		result, _ := res.Val.(ReplayResult)
		return result, res.Err
	}
}

func (q *Queue) joinRun(ctx context.Context) *replayRun {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	if q.run == nil {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		q.run = &replayRun{ctx: runCtx, cancel: cancel}
	}
	q.run.waiters++
	return q.run
}

// leaveRun reports whether the caller was the last one waiting on run.
func (q *Queue) leaveRun(run *replayRun) bool {
	q.runMu.Lock()
	defer q.runMu.Unlock()
	run.waiters--
	if run.waiters > 0 {
		return false
	}
	run.cancel()
	if q.run == run {
		q.run = nil
	}
	return true
}

func (q *Queue) replay(ctx context.Context) (ReplayResult, error) {
	var result ReplayResult

	q.mu.Lock()
	ids := make([]string, 0, len(q.pending))
	for _, item := range q.pending {
		ids = append(ids, item.ID)
	}
	q.mu.Unlock()

	// Bookkeeping after a send must land even if ctx was cancelled meanwhile.
	bg := context.WithoutCancel(ctx)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		item, err := q.markInFlight(ctx, id)
		if errors.Is(err, ErrItemNotFound) {
			continue
		}
		if err != nil {
			return result, err
		}

		_, sendErr := q.send.Execute(ctx, item.Operation)
		if sendErr == nil {
			if err := q.complete(bg, item); err != nil {
				return result, err
			}
			result.Succeeded = append(result.Succeeded, item.ID)
			metrics.QueueReplayedTotal.WithLabelValues("succeeded").Inc()
			continue
		}

		c := routing.Classify(sendErr)
		item.LastError = c.Message
		item.LastKind = c.Kind

		switch {
		case c.Kind == domain.KindCancelled:
			item.Status = domain.QueueItemPending
			if err := q.update(bg, item); err != nil {
				return result, err
			}
			return result, sendErr

		case !c.Retryable:
			if err := q.deadLetter(bg, item); err != nil {
				return result, err
			}
			result.DeadLettered = append(result.DeadLettered, item.ID)

		default:
			item.Retries++
			if item.Retries >= q.maxRetries {
				if err := q.deadLetter(bg, item); err != nil {
					return result, err
				}
				result.DeadLettered = append(result.DeadLettered, item.ID)
				continue
			}
			item.Status = domain.QueueItemPending
			if err := q.update(bg, item); err != nil {
				return result, err
			}
			metrics.QueueReplayedTotal.WithLabelValues("retry").Inc()
			q.logger.Debug("Queued write will be retried",
				"id", item.ID, "kind", c.Kind, "retries", item.Retries, "max_retries", q.maxRetries)
		}
	}

	return result, nil
}

// Requeue moves a dead-lettered item back to pending with a fresh retry budget.
func (q *Queue) Requeue(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := slices.IndexFunc(q.dead, func(it domain.QueueItem) bool { return it.ID == id })
	if idx < 0 {
		return ErrItemNotFound
	}

	item := q.dead[idx]
	item.Retries = 0
	item.Status = domain.QueueItemPending
	item.LastError = ""
	item.LastKind = ""

	if err := q.persist(ctx, pendingPrefix, item); err != nil {
		return err
	}
	if err := q.store.Remove(ctx, deadPrefix+id); err != nil {
		return fmt.Errorf("remove dead queue item %s: %w", id, err)
	}

	q.dead = slices.Delete(q.dead, idx, idx+1)
	pos, _ := slices.BinarySearchFunc(q.pending, id, func(it domain.QueueItem, target string) int {
		return strings.Compare(it.ID, target)
	})
	q.pending = slices.Insert(q.pending, pos, item)
	q.updateGauges()
	return nil
}

// Discard permanently removes a dead-lettered item. It is only reachable from
// an explicit user action.
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := slices.IndexFunc(q.dead, func(it domain.QueueItem) bool { return it.ID == id })
	if idx < 0 {
		return ErrItemNotFound
	}
	if err := q.store.Remove(ctx, deadPrefix+id); err != nil {
		return fmt.Errorf("remove dead queue item %s: %w", id, err)
	}

	q.dead = slices.Delete(q.dead, idx, idx+1)
	q.updateGauges()
	q.logger.Info("Discarded dead-lettered write", "id", id)
	return nil
}

func (q *Queue) markInFlight(ctx context.Context, id string) (domain.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexPending(id)
	if idx < 0 {
		return domain.QueueItem{}, ErrItemNotFound
	}
	item := q.pending[idx]
	item.Status = domain.QueueItemInFlight
	if err := q.persist(ctx, pendingPrefix, item); err != nil {
		return domain.QueueItem{}, err
	}
	q.pending[idx] = item
	return item, nil
}

func (q *Queue) update(ctx context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(ctx, pendingPrefix, item); err != nil {
		return err
	}
	if idx := q.indexPending(item.ID); idx >= 0 {
		q.pending[idx] = item
	}
	return nil
}

func (q *Queue) complete(ctx context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	if err := q.store.Remove(ctx, pendingPrefix+item.ID); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("remove queue item %s: %w", item.ID, err)
	}
	if idx := q.indexPending(item.ID); idx >= 0 {
		q.pending = slices.Delete(q.pending, idx, idx+1)
	}
	q.updateGauges()
	q.mu.Unlock()

	if q.cache != nil {
		if err := q.cache.AfterWrite(ctx, item.Operation); err != nil {
			q.logger.Warn("Failed to invalidate cache after replay", "key", item.Operation.Key, "error", err)
		}
	}
	return nil
}

func (q *Queue) deadLetter(ctx context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item.Status = domain.QueueItemDeadLettered
	if err := q.persist(ctx, deadPrefix, item); err != nil {
		return err
	}
	if err := q.store.Remove(ctx, pendingPrefix+item.ID); err != nil {
		return fmt.Errorf("remove queue item %s: %w", item.ID, err)
	}

	if idx := q.indexPending(item.ID); idx >= 0 {
		q.pending = slices.Delete(q.pending, idx, idx+1)
	}
	q.dead = append(q.dead, item)
	q.updateGauges()
	metrics.QueueReplayedTotal.WithLabelValues("dead_lettered").Inc()

	q.logger.Warn("Dead-lettered queued write",
		"id", item.ID, "key", item.Operation.Key, "kind", item.LastKind,
		"retries", item.Retries, "error", item.LastError)
	return nil
}

func (q *Queue) indexPending(id string) int {
	return slices.IndexFunc(q.pending, func(it domain.QueueItem) bool { return it.ID == id })
}

func (q *Queue) persist(ctx context.Context, prefix string, item domain.QueueItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode queue item %s: %w", item.ID, err)
	}
	if err := q.store.Set(ctx, prefix+item.ID, raw); err != nil {
		return fmt.Errorf("persist queue item %s: %w", item.ID, err)
	}
	return nil
}

func (q *Queue) readNamespace(ctx context.Context, prefix string) ([]domain.QueueItem, error) {
	keys, err := q.store.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	items := make([]domain.QueueItem, 0, len(keys))
	for _, key := range keys {
		raw, err := q.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		var item domain.QueueItem
		if err := json.Unmarshal(raw, &item); err != nil {
			// Never drop a queued write silently; surface the corruption.
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *Queue) updateGauges() {
	metrics.QueueDepth.WithLabelValues("pending").Set(float64(len(q.pending)))
	metrics.QueueDepth.WithLabelValues("dead_lettered").Set(float64(len(q.dead)))
}
