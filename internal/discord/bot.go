// Package discord provides the Discord adapter for kotoyomi. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, binds each guild's reading channel, and forwards
// eligible chat messages to the speech manager.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/kotoyomi/kotoyomi/internal/profile"
	"github.com/kotoyomi/kotoyomi/internal/speech"
	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

// BotConfig holds the Bot's credentials and collaborators.
type BotConfig struct {
	// Token is the Discord bot token.
	Token string

	// CommandGuildID, when non-empty, scopes slash command registration to
	// one guild. Empty registers the commands globally.
	CommandGuildID string

	// Speech routes utterances to per-guild queues. Required.
	Speech *speech.Manager

	// Profiles stores voice settings. Required.
	Profiles profile.Store

	// Engine is the synthesis engine client, used for speaker listing and
	// name resolution. Required.
	Engine *voicevox.Client
}

// Bot owns the Discord gateway connection. One Bot serves many guilds; all
// per-guild reading state lives in the guilds map.
type Bot struct {
	session  *discordgo.Session
	router   *CommandRouter
	speech   *speech.Manager
	profiles profile.Store
	engine   *voicevox.Client

	cmdGuildID string

	mu     sync.Mutex
	guilds map[string]*guildState

	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

// New creates a Bot, connects to the Discord gateway, and registers the
// interaction and message handlers.
func New(cfg BotConfig) (*Bot, error) {
	if cfg.Speech == nil || cfg.Profiles == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("discord: BotConfig requires Speech, Profiles and Engine")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// MessageContent is a privileged intent; reading chat aloud is the whole
	// point of the bot, so it must be enabled in the developer portal.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{
		session:    session,
		router:     NewCommandRouter(),
		speech:     cfg.Speech,
		profiles:   cfg.Profiles,
		engine:     cfg.Engine,
		cmdGuildID: cfg.CommandGuildID,
		guilds:     make(map[string]*guildState),
	}
	b.registerCommands()

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(b.handleMessageCreate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	slog.Info("discord gateway connected", "user", session.State.User.Username)

	return b, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID

	cmds := b.router.ApplicationCommands()
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.cmdGuildID, cmds)
	if err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	b.mu.Lock()
	b.commands = registered
	b.mu.Unlock()
	slog.Info("discord commands registered", "count", len(registered), "guild", b.cmdGuildID)

	<-ctx.Done()
	return ctx.Err()
}

// Close leaves all voice channels, unregisters commands, and disconnects
// from Discord. Safe to call more than once.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		guildIDs := make([]string, 0, len(b.guilds))
		for id := range b.guilds {
			guildIDs = append(guildIDs, id)
		}
		b.mu.Unlock()

		for _, id := range guildIDs {
			if err := b.leaveVoice(id); err != nil {
				slog.Warn("discord: leave voice on shutdown", "guild", id, "err", err)
			}
		}

		b.mu.Lock()
		commands := b.commands
		b.mu.Unlock()
		appID := b.session.State.User.ID
		for _, cmd := range commands {
			if err := b.session.ApplicationCommandDelete(appID, b.cmdGuildID, cmd.ID); err != nil {
				slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
			}
		}

		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
