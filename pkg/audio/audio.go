// Package audio defines the playback abstraction for kotoyomi and the PCM
// plumbing shared by sink implementations: WAV decoding, sample-rate
// conversion, and channel conversion.
//
// The central abstraction is [Sink] — "play this audio buffer and tell me
// when it is done". Sink implementations are provided by platform-specific
// packages (e.g. audio/discord); the speech core stays decoupled from
// transport details.
package audio

import "context"

// Sink plays one audio buffer to completion on some output.
//
// Play blocks until playback finishes naturally or fails; it must not return
// early. Callers guarantee at most one outstanding Play per sink — the
// per-room drain worker enforces this — so implementations need not handle
// overlapping calls. ctx bounds the wait; implementations should treat ctx
// expiry as a playback failure.
type Sink interface {
	Play(ctx context.Context, wav []byte) error
}

// Format describes the sample rate and channel count of a PCM buffer.
type Format struct {
	SampleRate int
	Channels   int
}
