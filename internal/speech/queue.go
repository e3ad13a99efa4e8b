package speech

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kotoyomi/kotoyomi/internal/observe"
	"github.com/kotoyomi/kotoyomi/internal/profile"
	"github.com/kotoyomi/kotoyomi/pkg/audio"
	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

// defaultPause is the gap inserted between consecutive utterances so they do
// not run together audibly.
const defaultPause = 300 * time.Millisecond

// Synthesizer renders text spoken by a given speaker style into audio bytes.
// Implemented by [voicevox.Client].
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, speakerID int, params voicevox.Parameters) ([]byte, error)
}

// Utterance is one queued unit of speech. It is immutable once enqueued; in
// particular the sink is captured at submission time and never re-resolved.
type Utterance struct {
	RoomID      string
	SubmitterID string
	Text        string
	Sink        audio.Sink
}

// Status is a point-in-time snapshot of a room's queue.
type Status struct {
	// QueueLength is the number of utterances waiting (not counting one
	// currently being synthesised or played).
	QueueLength int

	// Draining reports whether the room's worker is busy with an utterance.
	Draining bool
}

// queueDeps are the collaborators shared by all room queues of a manager.
type queueDeps struct {
	profiles    profile.Store
	synth       Synthesizer
	metrics     *observe.Metrics
	pause       time.Duration
	playTimeout time.Duration
}

// queue serialises playback for one room. A single dedicated worker goroutine
// owns the drain loop; submissions append under a small lock and wake the
// worker through a buffered channel, so a submission racing the worker's
// empty-check can never be lost.
type queue struct {
	roomID string
	deps   *queueDeps

	mu       sync.Mutex
	pending  []Utterance
	draining bool

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// newQueue creates the queue and starts its worker.
func newQueue(ctx context.Context, roomID string, deps *queueDeps) *queue {
	q := &queue{
		roomID: roomID,
		deps:   deps,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

// enqueue appends an utterance. The worker picks it up either because it is
// already draining or via the wake signal.
func (q *queue) enqueue(u Utterance) {
	q.mu.Lock()
	q.pending = append(q.pending, u)
	depth := len(q.pending)
	q.mu.Unlock()

	q.deps.metrics.QueueDepth.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("room", q.roomID)))
	slog.Debug("utterance enqueued", "room", q.roomID, "queue_length", depth)

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// clear discards all pending utterances and returns how many were dropped.
// An utterance already being synthesised or played is not interrupted.
func (q *queue) clear() int {
	q.mu.Lock()
	n := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	if n > 0 {
		q.deps.metrics.QueueDepth.Add(context.Background(), int64(-n),
			metric.WithAttributes(attribute.String("room", q.roomID)))
	}
	return n
}

// status is a non-blocking snapshot read.
func (q *queue) status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{QueueLength: len(q.pending), Draining: q.draining}
}

// stop terminates the worker. Safe to call more than once. The manager only
// stops idle queues.
func (q *queue) stop() {
	q.stopOnce.Do(func() { close(q.done) })
}

// run is the drain loop. It pops the head utterance, resolves the effective
// voice and parameters, synthesises, plays to completion, and repeats until
// the queue is empty, then parks on the wake channel. At most one run loop
// exists per room by construction.
func (q *queue) run(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			select {
			case <-q.wake:
				continue
			case <-q.done:
				return
			case <-ctx.Done():
				return
			}
		}
		q.draining = true
		u := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.deps.metrics.QueueDepth.Add(ctx, -1,
			metric.WithAttributes(attribute.String("room", q.roomID)))

		q.process(ctx, u)

		select {
		case <-time.After(q.deps.pause):
		case <-ctx.Done():
			return
		case <-q.done:
			return
		}
	}
}

// process handles a single utterance. Failures are item-scoped: they are
// logged and counted, and the loop moves on.
func (q *queue) process(ctx context.Context, u Utterance) {
	voice, err := q.deps.profiles.EffectiveVoice(ctx, u.RoomID, u.SubmitterID)
	if err != nil {
		// The store already fell back to a usable default.
		slog.Warn("voice lookup failed, using fallback", "room", u.RoomID, "err", err)
	}
	params, err := q.deps.profiles.Parameters(ctx, u.RoomID)
	if err != nil {
		slog.Warn("parameter lookup failed, using defaults", "room", u.RoomID, "err", err)
	}

	start := time.Now()
	wav, err := q.deps.synth.Synthesize(ctx, u.Text, voice, params)
	q.deps.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("synthesis failed", "room", u.RoomID, "voice", voice, "err", err)
		q.deps.metrics.Utterances.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "synthesis_error")))
		return
	}

	playCtx, cancel := context.WithTimeout(ctx, q.deps.playTimeout)
	defer cancel()

	start = time.Now()
	err = u.Sink.Play(playCtx, wav)
	q.deps.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("playback failed", "room", u.RoomID, "err", err)
		q.deps.metrics.Utterances.Add(ctx, 1,
			metric.WithAttributes(attribute.String("status", "playback_error")))
		return
	}

	q.deps.metrics.Utterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", "played")))
	slog.Debug("utterance played", "room", u.RoomID, "voice", voice)
}
