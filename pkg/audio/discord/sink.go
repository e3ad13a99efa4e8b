// Package discord implements [audio.Sink] on top of a discordgo voice
// connection. WAV buffers from the synthesis engine are decoded, converted to
// Discord's 48 kHz stereo format, encoded to Opus and handed to the voice
// connection frame by frame.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/kotoyomi/kotoyomi/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// Sink plays WAV buffers on a single Discord voice connection.
//
// Play blocks until every Opus frame has been handed to discordgo, which
// paces transmission at one frame per 20 ms, so returning from Play closely
// tracks real playback time. The caller serializes Play calls; Sink performs
// no locking of its own.
type Sink struct {
	enc *opusEncoder

	// send and speak default to the voice connection's OpusSend channel and
	// Speaking method; tests substitute their own.
	send  chan<- []byte
	speak func(bool) error
}

// NewSink wraps an already-joined voice connection.
func NewSink(vc *discordgo.VoiceConnection) (*Sink, error) {
	enc, err := newOpusEncoder()
	if err != nil {
		return nil, err
	}
	return &Sink{
		enc:   enc,
		send:  vc.OpusSend,
		speak: vc.Speaking,
	}, nil
}

// Play decodes wav, converts it to 48 kHz stereo and streams it as Opus
// frames. The final partial frame is zero-padded to a full 20 ms frame. ctx
// cancellation aborts mid-utterance; frames already handed off still play.
func (s *Sink) Play(ctx context.Context, wav []byte) error {
	format, pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return fmt.Errorf("discord: decode synthesis output: %w", err)
	}

	pcm = audio.Convert(pcm, format, audio.Format{SampleRate: opusSampleRate, Channels: opusChannels})
	if len(pcm) == 0 {
		return nil
	}

	s.setSpeaking(true)
	defer s.setSpeaking(false)

	for off := 0; off < len(pcm); off += opusFrameBytes {
		frame := pcm[off:min(off+opusFrameBytes, len(pcm))]
		if len(frame) < opusFrameBytes {
			padded := make([]byte, opusFrameBytes)
			copy(padded, frame)
			frame = padded
		}

		opus, err := s.enc.encode(frame)
		if err != nil {
			return err
		}

		select {
		case s.send <- opus:
		case <-ctx.Done():
			return fmt.Errorf("discord: playback aborted: %w", ctx.Err())
		}
	}
	return nil
}

// setSpeaking sends a speaking notification to Discord, logging any errors.
func (s *Sink) setSpeaking(b bool) {
	if err := s.speak(b); err != nil {
		slog.Warn("discord: speaking notification error", "speaking", b, "error", err)
	}
}
