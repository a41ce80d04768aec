// Package capture implements the capture and recognition session.
//
// A session moves idle → capturing → submitted → result|failed → idle, with
// at most one recognition in flight. Every user-initiated capture gets a fresh
// idempotency key; RetrySameImage resubmits the same bytes under the same key.
// A result that carries a security alert must be acknowledged before the
// session can be reset, though Cancel always returns to idle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/routing"
	"github.com/vietddude/faceguard/internal/metrics"
)

var (
	// ErrBusy is returned when an intent is not allowed in the current state
	ErrBusy = errors.New("capture session busy")
	// ErrPermissionDenied is returned when the camera permission is refused
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrEmptyImage is returned for a zero-length capture
	ErrEmptyImage = errors.New("captured image is empty")
	// ErrAlertPending is returned by Reset while a security alert is unacknowledged
	ErrAlertPending = errors.New("security alert must be acknowledged")
	// ErrNoAlert is returned by AcknowledgeAlert when nothing is pending
	ErrNoAlert = errors.New("no alert to acknowledge")
	// ErrCancelled is returned to a caller whose work was discarded by Cancel
	ErrCancelled = errors.New("capture cancelled")
)

// Camera produces image bytes.
type Camera interface {
	RequestPermission(ctx context.Context) (bool, error)
	Capture(ctx context.Context) ([]byte, error)
}

// Recognizer submits an image for recognition.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, idempotencyKey string) (domain.Recognition, error)
}

// AlertAcknowledger records that the operator has seen an alert.
type AlertAcknowledger interface {
	AcknowledgeAlert(ctx context.Context, alert domain.Alert) error
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	State          State
	ImageSize      int
	IdempotencyKey string
	Result         *domain.Recognition
	Failure        *routing.Failure
	AlertPending   bool
	Err            error
}

// Session is a single capture/recognition flow.
type Session struct {
	camera     Camera
	recognizer Recognizer
	acker      AlertAcknowledger
	newKey     func() string
	logger     *slog.Logger

	mu           sync.Mutex
	state        State
	image        []byte
	key          string
	result       *domain.Recognition
	failure      *routing.Failure
	alertPending bool
	err          error
	gen          uint64
	cancel       context.CancelFunc
	subs         []chan Snapshot
}

// NewSession creates an idle session. acker may be nil.
func NewSession(camera Camera, recognizer Recognizer, acker AlertAcknowledger, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		camera:     camera,
		recognizer: recognizer,
		acker:      acker,
		newKey:     uuid.NewString,
		logger:     logger,
		state:      StateIdle,
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that always holds the latest snapshot, and a
// function that stops the subscription.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- s.snapshotLocked()
	s.subs = append(s.subs, ch)

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if i := slices.Index(s.subs, ch); i >= 0 {
			s.subs = slices.Delete(s.subs, i, i+1)
			close(ch)
		}
	}
}

// Begin moves an idle session to capturing. Use it when the image comes from
// somewhere other than the session's camera, then call ImageReady.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.beginLocked()
	return err
}

func (s *Session) beginLocked() (uint64, error) {
	if s.state != StateIdle {
		return 0, ErrBusy
	}
	s.clearLocked()
	if err := s.transitionLocked(StateCapturing, "capture"); err != nil {
		return 0, err
	}
	return s.gen, nil
}

// Capture takes a picture with the camera and submits it. It blocks until the
// recognition settles or the session is cancelled.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	gen, err := s.beginLocked()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	camCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	granted, err := s.camera.RequestPermission(camCtx)
	if err == nil && !granted {
		err = ErrPermissionDenied
	}
	var image []byte
	if err == nil {
		image, err = s.camera.Capture(camCtx)
	}
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			return ErrCancelled
		}
		s.err = err
		s.toIdleLocked("camera: " + err.Error())
		return fmt.Errorf("capture: %w", err)
	}

	if len(image) == 0 {
		return ErrEmptyImage
	}
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Debug("Discarding frame from cancelled capture")
		return ErrCancelled
	}
	return s.imageReadyLocked(ctx, image)
}

// ImageReady submits captured bytes under a fresh idempotency key.
func (s *Session) ImageReady(ctx context.Context, image []byte) error {
	if len(image) == 0 {
		return ErrEmptyImage
	}

	s.mu.Lock()
	return s.imageReadyLocked(ctx, image)
}

// imageReadyLocked is entered with s.mu held and releases it.
func (s *Session) imageReadyLocked(ctx context.Context, image []byte) error {
	if s.state != StateCapturing {
		s.mu.Unlock()
		return ErrBusy
	}
	s.image = slices.Clone(image)
	s.key = s.newKey()
	return s.submitLocked(ctx, "image ready")
}

// RetrySameImage resubmits the failed image with its original idempotency key.
func (s *Session) RetrySameImage(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateFailed {
		s.mu.Unlock()
		return ErrBusy
	}
	return s.submitLocked(ctx, "retry same image")
}

// submitLocked is entered with s.mu held and releases it.
func (s *Session) submitLocked(ctx context.Context, reason string) error {
	s.failure = nil
	s.err = nil
	if err := s.transitionLocked(StateSubmitted, reason); err != nil {
		s.mu.Unlock()
		return err
	}

	gen := s.gen
	image := s.image
	key := s.key
	subCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	rec, err := s.recognizer.Recognize(subCtx, image, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Debug("Discarding recognition for cancelled session", "idempotency_key", key)
		return ErrCancelled
	}
	s.cancel = nil

	if err != nil {
		c := routing.Classify(err)
		var failure *routing.Failure
		if !errors.As(err, &failure) {
			failure = &routing.Failure{Kind: c.Kind, Status: c.Status, Message: c.Message, Attempts: 1, Err: err}
		}
		s.failure = failure
		_ = s.transitionLocked(StateFailed, string(failure.Kind))
		return failure
	}

	s.result = &rec
	s.alertPending = rec.Alert != nil
	if s.alertPending {
		s.logger.Warn("Security alert raised",
			"alert_id", rec.Alert.ID, "level", rec.Alert.Level, "message", rec.Alert.Message)
	}
	_ = s.transitionLocked(StateResult, "recognized")
	return nil
}

// Cancel aborts any in-flight work, discards captured bytes and returns to idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.state == StateIdle {
		return
	}
	s.clearLocked()
	s.toIdleLocked("cancel")
}

// Reset returns a settled session to idle. It is refused while a security
// alert is unacknowledged or while work is in flight.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return nil
	case StateResult, StateFailed:
	default:
		return ErrBusy
	}
	if s.alertPending {
		return ErrAlertPending
	}
	s.clearLocked()
	s.toIdleLocked("reset")
	return nil
}

// AcknowledgeAlert forwards the pending alert to the acknowledger and clears it.
func (s *Session) AcknowledgeAlert(ctx context.Context) error {
	s.mu.Lock()
	if !s.alertPending || s.result == nil || s.result.Alert == nil {
		s.mu.Unlock()
		return ErrNoAlert
	}
	alert := *s.result.Alert
	gen := s.gen
	s.mu.Unlock()

	if s.acker != nil {
		if err := s.acker.AcknowledgeAlert(ctx, alert); err != nil {
			return fmt.Errorf("acknowledge alert %s: %w", alert.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.gen {
		s.alertPending = false
		s.publishLocked()
	}
	s.logger.Info("Security alert acknowledged", "alert_id", alert.ID, "level", alert.Level)
	return nil
}

func (s *Session) toIdleLocked(reason string) {
	// Cancel and Reset may leave any state; the table only covers forward moves.
	if s.state != StateIdle {
		metrics.CaptureTransitionsTotal.WithLabelValues(string(s.state), string(StateIdle)).Inc()
		s.logger.Debug("Capture transition", "from", s.state, "to", StateIdle, "reason", reason)
	}
	s.gen++
	s.state = StateIdle
	s.publishLocked()
}

func (s *Session) transitionLocked(to State, reason string) error {
	t := NewTransition(s.state, to, reason)
	if !t.IsValid() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	metrics.CaptureTransitionsTotal.WithLabelValues(string(t.From), string(t.To)).Inc()
	s.logger.Debug("Capture transition", "from", t.From, "to", t.To, "reason", t.Reason)
	if to == StateCapturing {
		s.gen++
	}
	s.state = to
	s.publishLocked()
	return nil
}

func (s *Session) clearLocked() {
	s.image = nil
	s.key = ""
	s.result = nil
	s.failure = nil
	s.alertPending = false
	s.err = nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:          s.state,
		ImageSize:      len(s.image),
		IdempotencyKey: s.key,
		Failure:        s.failure,
		AlertPending:   s.alertPending,
		Err:            s.err,
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}

func (s *Session) publishLocked() {
	snap := s.snapshotLocked()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
