package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/routing"
)

type fakeCamera struct {
	denied bool
	image  []byte
	err    error
}

func (c *fakeCamera) RequestPermission(ctx context.Context) (bool, error) {
	return !c.denied, nil
}

func (c *fakeCamera) Capture(ctx context.Context) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.image, nil
}

type submission struct {
	image []byte
	key   string
}

type fakeRecognizer struct {
	mu      sync.Mutex
	results []func(ctx context.Context) (domain.Recognition, error)
	calls   []submission
}

func (r *fakeRecognizer) then(fn func(ctx context.Context) (domain.Recognition, error)) *fakeRecognizer {
	r.results = append(r.results, fn)
	return r
}

func (r *fakeRecognizer) Recognize(ctx context.Context, image []byte, key string) (domain.Recognition, error) {
	r.mu.Lock()
	r.calls = append(r.calls, submission{image: image, key: key})
	var fn func(ctx context.Context) (domain.Recognition, error)
	if len(r.results) > 0 {
		fn = r.results[0]
		r.results = r.results[1:]
	}
	r.mu.Unlock()

	if fn == nil {
		return domain.Recognition{Success: true}, nil
	}
	return fn(ctx)
}

type fakeAcker struct {
	acked []domain.Alert
	err   error
}

func (a *fakeAcker) AcknowledgeAlert(ctx context.Context, alert domain.Alert) error {
	if a.err != nil {
		return a.err
	}
	a.acked = append(a.acked, alert)
	return nil
}

func succeed(rec domain.Recognition) func(ctx context.Context) (domain.Recognition, error) {
	return func(ctx context.Context) (domain.Recognition, error) { return rec, nil }
}

func fail(err error) func(ctx context.Context) (domain.Recognition, error) {
	return func(ctx context.Context) (domain.Recognition, error) { return domain.Recognition{}, err }
}

var highAlert = domain.Recognition{
	Success:    true,
	Student:    &domain.Student{ID: "S001", Name: "Ann"},
	Confidence: 0.42,
	Alert:      &domain.Alert{ID: "A-77", Level: domain.AlertHigh, Message: "Unknown person detected"},
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateIdle, StateCapturing, true},
		{StateIdle, StateSubmitted, false},
		{StateCapturing, StateSubmitted, true},
		{StateSubmitted, StateResult, true},
		{StateSubmitted, StateFailed, true},
		{StateFailed, StateSubmitted, true},
		{StateResult, StateSubmitted, false},
		{StateResult, StateIdle, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCapture_HighAlertThenCancel(t *testing.T) {
	ctx := context.Background()
	recognizer := (&fakeRecognizer{}).then(succeed(highAlert))
	s := NewSession(&fakeCamera{image: []byte("X")}, recognizer, &fakeAcker{}, nil)

	require.NoError(t, s.Capture(ctx))

	snap := s.Snapshot()
	assert.Equal(t, StateResult, snap.State)
	assert.True(t, snap.AlertPending)
	require.NotNil(t, snap.Result)
	assert.Equal(t, domain.AlertHigh, snap.Result.Alert.Level)

	assert.ErrorIs(t, s.Reset(), ErrAlertPending, "an unacknowledged alert cannot be dismissed")
	assert.Equal(t, StateResult, s.Snapshot().State)

	s.Cancel()

	snap = s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.AlertPending)
	assert.Nil(t, snap.Result)
	assert.Zero(t, snap.ImageSize, "captured bytes are discarded")
	assert.NoError(t, snap.Err)
}

func TestCapture_AcknowledgeThenReset(t *testing.T) {
	ctx := context.Background()
	acker := &fakeAcker{}
	s := NewSession(&fakeCamera{image: []byte("X")}, (&fakeRecognizer{}).then(succeed(highAlert)), acker, nil)

	require.NoError(t, s.Capture(ctx))
	require.NoError(t, s.AcknowledgeAlert(ctx))

	require.Len(t, acker.acked, 1)
	assert.Equal(t, "A-77", acker.acked[0].ID)
	assert.False(t, s.Snapshot().AlertPending)

	require.NoError(t, s.Reset())
	assert.Equal(t, StateIdle, s.Snapshot().State)
	assert.ErrorIs(t, s.AcknowledgeAlert(ctx), ErrNoAlert)
}

func TestCapture_AcknowledgeFailureKeepsAlert(t *testing.T) {
	ctx := context.Background()
	acker := &fakeAcker{err: errors.New("store unavailable")}
	s := NewSession(&fakeCamera{image: []byte("X")}, (&fakeRecognizer{}).then(succeed(highAlert)), acker, nil)

	require.NoError(t, s.Capture(ctx))
	assert.Error(t, s.AcknowledgeAlert(ctx))
	assert.True(t, s.Snapshot().AlertPending)
	assert.ErrorIs(t, s.Reset(), ErrAlertPending)
}

func TestCapture_RefusedWhileBusy(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	recognizer := (&fakeRecognizer{}).then(func(ctx context.Context) (domain.Recognition, error) {
		close(entered)
		<-release
		return domain.Recognition{Success: true}, nil
	})
	s := NewSession(&fakeCamera{image: []byte("X")}, recognizer, nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Capture(ctx) }()
	<-entered

	assert.Equal(t, StateSubmitted, s.Snapshot().State)
	assert.ErrorIs(t, s.Capture(ctx), ErrBusy)
	assert.ErrorIs(t, s.Begin(), ErrBusy)
	assert.ErrorIs(t, s.Reset(), ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.Len(t, recognizer.calls, 1, "one operation in flight per session")
}

func TestCapture_FailureThenRetrySameImage(t *testing.T) {
	ctx := context.Background()
	serverDown := &routing.Failure{Kind: domain.KindServerError, Status: 503, Message: "model loading", Attempts: 3}
	recognizer := (&fakeRecognizer{}).
		then(fail(serverDown)).
		then(succeed(domain.Recognition{Success: true, Student: &domain.Student{ID: "S002"}}))
	s := NewSession(&fakeCamera{image: []byte("face-bytes")}, recognizer, nil, nil)

	err := s.Capture(ctx)
	var failure *routing.Failure
	require.ErrorAs(t, err, &failure)

	snap := s.Snapshot()
	assert.Equal(t, StateFailed, snap.State)
	require.NotNil(t, snap.Failure)
	assert.Equal(t, domain.KindServerError, snap.Failure.Kind)
	assert.Equal(t, "model loading", snap.Failure.Message)
	assert.True(t, snap.Failure.Retryable())

	require.NoError(t, s.RetrySameImage(ctx))
	assert.Equal(t, StateResult, s.Snapshot().State)

	require.Len(t, recognizer.calls, 2)
	assert.Equal(t, recognizer.calls[0].image, recognizer.calls[1].image)
	assert.Equal(t, recognizer.calls[0].key, recognizer.calls[1].key, "retry reuses the idempotency key")
}

func TestCapture_FreshKeyPerCapture(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeRecognizer{}
	s := NewSession(&fakeCamera{image: []byte("X")}, recognizer, nil, nil)

	require.NoError(t, s.Capture(ctx))
	require.NoError(t, s.Reset())
	require.NoError(t, s.Capture(ctx))

	require.Len(t, recognizer.calls, 2)
	assert.NotEmpty(t, recognizer.calls[0].key)
	assert.NotEqual(t, recognizer.calls[0].key, recognizer.calls[1].key)
}

func TestCapture_PlainErrorIsClassified(t *testing.T) {
	recognizer := (&fakeRecognizer{}).then(fail(errors.New("connection refused")))
	s := NewSession(&fakeCamera{image: []byte("X")}, recognizer, nil, nil)

	require.Error(t, s.Capture(context.Background()))
	snap := s.Snapshot()
	require.NotNil(t, snap.Failure)
	assert.Equal(t, domain.KindNetwork, snap.Failure.Kind)
}

func TestCancel_DuringSubmissionDiscardsLateResult(t *testing.T) {
	entered := make(chan struct{})
	recognizer := (&fakeRecognizer{}).then(func(ctx context.Context) (domain.Recognition, error) {
		close(entered)
		<-ctx.Done()
		// A response that races the cancellation is still discarded.
		return highAlert, nil
	})
	s := NewSession(&fakeCamera{image: []byte("X")}, recognizer, nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Capture(context.Background()) }()
	<-entered

	s.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the submission")
	}

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Nil(t, snap.Result)
	assert.False(t, snap.AlertPending)
}

// gatedCamera holds the frame until release is closed, ignoring cancellation
// the way a slow camera driver does.
type gatedCamera struct {
	entered chan struct{}
	release chan struct{}
	image   []byte
}

func (c *gatedCamera) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (c *gatedCamera) Capture(ctx context.Context) ([]byte, error) {
	close(c.entered)
	<-c.release
	return c.image, nil
}

func TestCancel_DuringCaptureDropsLateFrame(t *testing.T) {
	camera := &gatedCamera{entered: make(chan struct{}), release: make(chan struct{}), image: []byte("OLD-FRAME")}
	recognizer := &fakeRecognizer{}
	s := NewSession(camera, recognizer, nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.Capture(context.Background()) }()
	<-camera.entered

	s.Cancel()
	require.NoError(t, s.Begin())
	close(camera.release)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not return")
	}

	recognizer.mu.Lock()
	assert.Empty(t, recognizer.calls, "the cancelled frame must not be submitted")
	recognizer.mu.Unlock()
	assert.Equal(t, StateCapturing, s.Snapshot().State)

	require.NoError(t, s.ImageReady(context.Background(), []byte("NEW-FRAME")))
	require.Len(t, recognizer.calls, 1)
	assert.Equal(t, []byte("NEW-FRAME"), recognizer.calls[0].image)
	assert.Equal(t, StateResult, s.Snapshot().State)
}

func TestCapture_PermissionDenied(t *testing.T) {
	recognizer := &fakeRecognizer{}
	s := NewSession(&fakeCamera{denied: true}, recognizer, nil, nil)

	err := s.Capture(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)

	snap := s.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.ErrorIs(t, snap.Err, ErrPermissionDenied)
	assert.Empty(t, recognizer.calls)
}

func TestImageReady_ExternalSource(t *testing.T) {
	ctx := context.Background()
	recognizer := &fakeRecognizer{}
	s := NewSession(nil, recognizer, nil, nil)

	assert.ErrorIs(t, s.ImageReady(ctx, []byte("X")), ErrBusy, "image without a capture in progress")

	require.NoError(t, s.Begin())
	assert.ErrorIs(t, s.ImageReady(ctx, nil), ErrEmptyImage)
	require.NoError(t, s.ImageReady(ctx, []byte("from-gallery")))

	assert.Equal(t, StateResult, s.Snapshot().State)
	require.Len(t, recognizer.calls, 1)
	assert.Equal(t, "from-gallery", string(recognizer.calls[0].image))
}

func TestSubscribe_ObservesTransitions(t *testing.T) {
	s := NewSession(&fakeCamera{image: []byte("X")}, (&fakeRecognizer{}).then(succeed(highAlert)), nil, nil)

	ch, stop := s.Subscribe()
	defer stop()

	assert.Equal(t, StateIdle, (<-ch).State)

	require.NoError(t, s.Capture(context.Background()))
	snap := <-ch
	assert.Equal(t, StateResult, snap.State)
	assert.True(t, snap.AlertPending)
}
