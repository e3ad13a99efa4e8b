package speech

import (
	"context"
	"errors"

	"github.com/kotoyomi/kotoyomi/internal/resilience"
	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

var _ Synthesizer = (*BreakerSynthesizer)(nil)

// BreakerSynthesizer wraps a [Synthesizer] with a circuit breaker. When the
// engine is unreachable every queued utterance would otherwise block its
// room's worker for the full HTTP timeout; the breaker makes those calls fail
// fast with [resilience.ErrCircuitOpen] until the engine recovers.
//
// Only availability failures trip the breaker. A [voicevox.ErrRejected]
// response means the engine is up and healthy but disliked this particular
// input, so it is passed through without affecting breaker state.
type BreakerSynthesizer struct {
	inner Synthesizer
	cb    *resilience.CircuitBreaker
}

// NewBreakerSynthesizer wraps inner with cb. Both must be non-nil.
func NewBreakerSynthesizer(inner Synthesizer, cb *resilience.CircuitBreaker) *BreakerSynthesizer {
	if inner == nil {
		panic("speech: NewBreakerSynthesizer requires a Synthesizer")
	}
	if cb == nil {
		panic("speech: NewBreakerSynthesizer requires a CircuitBreaker")
	}
	return &BreakerSynthesizer{inner: inner, cb: cb}
}

// Synthesize implements [Synthesizer].
func (b *BreakerSynthesizer) Synthesize(ctx context.Context, text string, speakerID int, params voicevox.Parameters) ([]byte, error) {
	var wav []byte
	var synthErr error
	err := b.cb.Execute(func() error {
		wav, synthErr = b.inner.Synthesize(ctx, text, speakerID, params)
		if errors.Is(synthErr, voicevox.ErrRejected) {
			return nil
		}
		return synthErr
	})
	if err != nil {
		return nil, err
	}
	return wav, synthErr
}
