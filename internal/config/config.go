// Package config provides the configuration schema and loader for the
// kotoyomi reader bot.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so the YAML file can use human-readable
// strings like "500ms" or "45s". Bare integers are taken as nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("config: invalid duration %q", value.Value)
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// LogLevel controls log verbosity for the kotoyomi server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l onto the corresponding slog.Level. Unknown values map to Info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for kotoyomi.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader];
// environment variables override the file (see [ApplyEnv]).
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Voicevox VoicevoxConfig `yaml:"voicevox"`
	Speech   SpeechConfig   `yaml:"speech"`
	Profile  ProfileConfig  `yaml:"profile"`
}

// ServerConfig holds network and logging settings for the health and metrics
// listener.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig holds the bot credentials and optional command scoping.
type DiscordConfig struct {
	// Token is the bot token. Required; usually supplied via DISCORD_TOKEN
	// rather than the file.
	Token string `yaml:"token"`

	// CommandGuildID, when set, registers slash commands on a single guild
	// instead of globally. Guild-scoped commands propagate instantly, which
	// is useful during development.
	CommandGuildID string `yaml:"command_guild_id"`
}

// VoicevoxConfig locates the synthesis engine.
type VoicevoxConfig struct {
	// URL is the engine base URL (e.g., "http://localhost:50021").
	URL string `yaml:"url"`

	// DefaultSpeaker is the style ID used when a room has no configured
	// voice.
	DefaultSpeaker int `yaml:"default_speaker"`

	// RequestTimeout bounds each engine HTTP request. Zero means the client
	// default.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SpeechConfig tunes the per-room drain workers.
type SpeechConfig struct {
	// Pause is the silence inserted between consecutive utterances.
	// Zero means the built-in default of 300 ms.
	Pause Duration `yaml:"pause"`

	// PlayTimeout bounds a single playback. Zero means the built-in default.
	PlayTimeout Duration `yaml:"play_timeout"`
}

// ProfileConfig selects where voice settings are stored.
type ProfileConfig struct {
	// PostgresDSN enables the Postgres-backed profile store so per-guild
	// voice settings survive restarts. Empty keeps settings in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Voicevox: VoicevoxConfig{
			URL:            "http://localhost:50021",
			DefaultSpeaker: 1,
		},
	}
}
