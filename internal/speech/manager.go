package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kotoyomi/kotoyomi/internal/observe"
	"github.com/kotoyomi/kotoyomi/internal/profile"
	"github.com/kotoyomi/kotoyomi/pkg/audio"
)

// defaultPlayTimeout bounds a single playback call so a stuck output can
// never wedge a room's drain worker.
const defaultPlayTimeout = 2 * time.Minute

// ErrRoomBusy is returned by [Manager.RemoveRoom] when the room still has
// queued or in-flight utterances.
var ErrRoomBusy = errors.New("speech: room queue is not idle")

// SubmitResult tells the caller what happened to a submission.
type SubmitResult int

const (
	// SubmitEnqueued means the text was accepted and queued for playback.
	SubmitEnqueued SubmitResult = iota

	// SubmitSuppressed means the normalizer declined the text. Not an error.
	SubmitSuppressed

	// SubmitRejected means the room has no usable output to play into.
	SubmitRejected
)

// String implements fmt.Stringer for log output.
func (r SubmitResult) String() string {
	switch r {
	case SubmitEnqueued:
		return "enqueued"
	case SubmitSuppressed:
		return "suppressed"
	case SubmitRejected:
		return "rejected"
	}
	return fmt.Sprintf("SubmitResult(%d)", int(r))
}

// ManagerConfig holds the collaborators for a [Manager].
type ManagerConfig struct {
	// Profiles resolves voices and acoustic parameters. Required.
	Profiles profile.Store

	// Synthesizer renders text to audio. Required.
	Synthesizer Synthesizer

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics

	// Pause between consecutive utterances. Defaults to 300 ms.
	Pause time.Duration

	// PlayTimeout bounds a single playback call. Defaults to 2 min.
	PlayTimeout time.Duration
}

// Manager owns the set of room queues. Queues are created lazily on first
// submission and live until [Manager.RemoveRoom] or [Manager.Close]; rooms
// never interact, so activity in one cannot delay another.
//
// All methods are safe for concurrent use.
type Manager struct {
	deps   *queueDeps
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*queue
}

// NewManager creates a Manager. It panics if a required collaborator is
// missing — that is a wiring bug, not a runtime condition.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Profiles == nil {
		panic("speech: ManagerConfig.Profiles is required")
	}
	if cfg.Synthesizer == nil {
		panic("speech: ManagerConfig.Synthesizer is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Pause <= 0 {
		cfg.Pause = defaultPause
	}
	if cfg.PlayTimeout <= 0 {
		cfg.PlayTimeout = defaultPlayTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps: &queueDeps{
			profiles:    cfg.Profiles,
			synth:       cfg.Synthesizer,
			metrics:     cfg.Metrics,
			pause:       cfg.Pause,
			playTimeout: cfg.PlayTimeout,
		},
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]*queue),
	}
}

// Submit normalizes rawText and, unless it is suppressed, appends it to the
// room's queue, creating the queue on first use. sink is captured with the
// utterance; a nil sink rejects the submission since the room has nothing to
// play into.
func (m *Manager) Submit(roomID, rawText, submitterID string, sink audio.Sink) SubmitResult {
	if sink == nil {
		return SubmitRejected
	}

	text, suppressed := Normalize(rawText)
	if suppressed {
		m.deps.metrics.Suppressed.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("room", roomID)))
		return SubmitSuppressed
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateLocked(roomID).enqueue(Utterance{
		RoomID:      roomID,
		SubmitterID: submitterID,
		Text:        text,
		Sink:        sink,
	})
	return SubmitEnqueued
}

// Clear discards the room's pending utterances and returns how many were
// dropped. An utterance already in flight completes normally.
func (m *Manager) Clear(roomID string) int {
	m.mu.Lock()
	q, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	return q.clear()
}

// Status returns a snapshot of the room's queue. Reading the status of an
// unknown room yields the zero Status and does not create the room.
func (m *Manager) Status(roomID string) Status {
	m.mu.Lock()
	q, ok := m.rooms[roomID]
	m.mu.Unlock()
	if !ok {
		return Status{}
	}
	return q.status()
}

// RemoveRoom tears down an idle room's queue, stopping its worker. Returns
// [ErrRoomBusy] when the room is still draining or has pending utterances;
// callers retry after the queue empties.
func (m *Manager) RemoveRoom(roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	if st := q.status(); st.Draining || st.QueueLength > 0 {
		return fmt.Errorf("%w: %s", ErrRoomBusy, roomID)
	}
	q.stop()
	delete(m.rooms, roomID)
	return nil
}

// Close stops every room worker. Pending utterances are dropped; in-flight
// synthesis and playback are cancelled through the workers' context.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, q := range m.rooms {
		q.stop()
		delete(m.rooms, id)
	}
}

// getOrCreateLocked returns the room's queue, creating it and starting its
// worker on first reference. Caller must hold m.mu.
func (m *Manager) getOrCreateLocked(roomID string) *queue {
	q, ok := m.rooms[roomID]
	if !ok {
		q = newQueue(m.ctx, roomID, m.deps)
		m.rooms[roomID] = q
	}
	return q
}
