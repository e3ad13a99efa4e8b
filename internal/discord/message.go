package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// handleMessageCreate forwards chat messages to the speech queue. A message
// is read aloud only when the bot is in a voice channel in that guild and
// the message arrived on the bound reading channel. Bot-authored messages
// are ignored so the bot can never feed itself.
func (b *Bot) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	sink, readingChannelID, ok := b.readingTarget(m.GuildID)
	if !ok || m.ChannelID != readingChannelID {
		return
	}

	result := b.speech.Submit(m.GuildID, m.Content, m.Author.ID, sink)
	slog.Debug("message submitted for reading",
		"guild", m.GuildID,
		"channel", m.ChannelID,
		"result", result.String(),
	)
}
