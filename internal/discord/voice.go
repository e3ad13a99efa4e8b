package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kotoyomi/kotoyomi/internal/speech"
	"github.com/kotoyomi/kotoyomi/pkg/audio"
	discordaudio "github.com/kotoyomi/kotoyomi/pkg/audio/discord"
)

// voiceConnection is the subset of *discordgo.VoiceConnection the guild state
// relies on. Narrowed for tests.
type voiceConnection interface {
	Disconnect() error
}

// guildState tracks one guild's reading session: the joined voice channel,
// the bound text channel whose messages are read aloud, and the sink playing
// into the voice connection.
type guildState struct {
	voiceChannelID   string
	readingChannelID string
	vc               voiceConnection
	sink             audio.Sink
}

// joinVoice connects to the guild's voice channel and binds readingChannelID
// as the channel to read from. Re-joining moves the bot and rebinds.
func (b *Bot) joinVoice(guildID, channelID, readingChannelID string) error {
	// Deafened: the bot never listens, it only speaks.
	vc, err := b.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("discord: join voice channel %s: %w", channelID, err)
	}

	sink, err := discordaudio.NewSink(vc)
	if err != nil {
		vc.Disconnect()
		return err
	}

	b.mu.Lock()
	b.guilds[guildID] = &guildState{
		voiceChannelID:   channelID,
		readingChannelID: readingChannelID,
		vc:               vc,
		sink:             sink,
	}
	b.mu.Unlock()

	slog.Info("joined voice channel", "guild", guildID, "voice_channel", channelID, "reading_channel", readingChannelID)
	return nil
}

// leaveVoice drops the queue, disconnects from voice, and forgets the
// guild's reading state. The room's worker is torn down once it goes idle.
func (b *Bot) leaveVoice(guildID string) error {
	b.mu.Lock()
	st, ok := b.guilds[guildID]
	delete(b.guilds, guildID)
	b.mu.Unlock()
	if !ok {
		return errors.New("discord: not connected to a voice channel")
	}

	dropped := b.speech.Clear(guildID)
	if dropped > 0 {
		slog.Info("dropped queued utterances on leave", "guild", guildID, "count", dropped)
	}

	err := st.vc.Disconnect()

	// An in-flight utterance may still be finishing (or failing now that the
	// connection is gone); retire the worker once it settles.
	go b.retireRoom(guildID)

	if err != nil {
		return fmt.Errorf("discord: disconnect voice: %w", err)
	}
	return nil
}

// retireRoom polls until the room's queue is idle and removable. Bounded so a
// wedged playback cannot leak the goroutine past its timeout.
func (b *Bot) retireRoom(guildID string) {
	deadline := time.Now().Add(3 * time.Minute)
	for time.Now().Before(deadline) {
		err := b.speech.RemoveRoom(guildID)
		if err == nil {
			return
		}
		if !errors.Is(err, speech.ErrRoomBusy) {
			slog.Warn("discord: remove room", "guild", guildID, "err", err)
			return
		}
		time.Sleep(250 * time.Millisecond)
	}
	slog.Warn("discord: room still busy after leave", "guild", guildID)
}

// readingTarget returns the sink and bound text channel for a connected
// guild. ok is false when the bot is not in a voice channel there.
func (b *Bot) readingTarget(guildID string) (sink audio.Sink, channelID string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, found := b.guilds[guildID]
	if !found {
		return nil, "", false
	}
	return st.sink, st.readingChannelID, true
}

// setReadingChannel rebinds the guild's reading channel. Reports false when
// the guild has no active voice session to bind to.
func (b *Bot) setReadingChannel(guildID, channelID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.guilds[guildID]
	if !ok {
		return false
	}
	st.readingChannelID = channelID
	return true
}

// connected reports whether the bot has a voice session in the guild.
func (b *Bot) connected(guildID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.guilds[guildID]
	return ok
}
