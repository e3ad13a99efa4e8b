// Package mock provides an in-memory implementation of [audio.Sink] for use
// in unit tests.
//
// The mock is safe for concurrent use. It records every Play call so that
// tests can assert on call counts and payloads, and exposes exported fields
// that the test can set to control behavior.
//
// Typical usage:
//
//	sink := &mock.Sink{}
//	mgr.Submit("room-1", "こんにちは", "user-1", sink)
//	// ... wait for the drain worker ...
//	if sink.CallCountPlay() != 1 { ... }
package mock

import (
	"context"
	"sync"

	"github.com/kotoyomi/kotoyomi/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// Sink is a mock implementation of [audio.Sink].
// Set the exported fields before use; inspect the recorded calls after.
type Sink struct {
	mu sync.Mutex

	// PlayError is returned by every Play call. When PlayErrors is non-empty
	// it takes precedence: call n returns PlayErrors[n], with calls past the
	// end returning nil.
	PlayError  error
	PlayErrors []error

	// Block, when non-nil, makes Play wait until the channel is closed (or
	// ctx expires) before returning. Use it to hold a room in the Speaking
	// state from a test.
	Block chan struct{}

	played    [][]byte
	callCount int
}

// Play implements [audio.Sink]. It records the payload, optionally blocks on
// the Block channel, and returns the configured error.
func (s *Sink) Play(ctx context.Context, wav []byte) error {
	s.mu.Lock()
	n := s.callCount
	s.callCount++
	s.played = append(s.played, wav)
	block := s.Block
	err := s.PlayError
	if len(s.PlayErrors) > 0 {
		err = nil
		if n < len(s.PlayErrors) {
			err = s.PlayErrors[n]
		}
	}
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// CallCountPlay returns how many times Play was called.
func (s *Sink) CallCountPlay() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Played returns a copy of every payload passed to Play, in call order.
func (s *Sink) Played() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.played))
	copy(out, s.played)
	return out
}
