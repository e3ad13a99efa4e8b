package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. An empty path yields the
// defaults (still subject to env overrides).
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		ApplyEnv(cfg)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg fields from environment variables. The environment
// wins over the file so deployments can keep secrets out of it.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		cfg.Discord.Token = v
	}
	if v := os.Getenv("DISCORD_COMMAND_GUILD_ID"); v != "" {
		cfg.Discord.CommandGuildID = v
	}
	if v := os.Getenv("VOICEVOX_URL"); v != "" {
		cfg.Voicevox.URL = v
	}
	if v := os.Getenv("VOICEVOX_SPEAKER_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Voicevox.DefaultSpeaker = id
		}
	}
	if v := os.Getenv("KOTOYOMI_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("KOTOYOMI_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("KOTOYOMI_POSTGRES_DSN"); v != "" {
		cfg.Profile.PostgresDSN = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set DISCORD_TOKEN)"))
	}
	if cfg.Voicevox.URL == "" {
		errs = append(errs, errors.New("voicevox.url is required (or set VOICEVOX_URL)"))
	}
	if cfg.Voicevox.DefaultSpeaker < 0 {
		errs = append(errs, fmt.Errorf("voicevox.default_speaker %d must not be negative", cfg.Voicevox.DefaultSpeaker))
	}
	if cfg.Voicevox.RequestTimeout < 0 {
		errs = append(errs, errors.New("voicevox.request_timeout must not be negative"))
	}
	if cfg.Speech.Pause < 0 {
		errs = append(errs, errors.New("speech.pause must not be negative"))
	}
	if cfg.Speech.Pause.Std() > 10*time.Second {
		errs = append(errs, fmt.Errorf("speech.pause %s is unreasonably long (max 10s)", cfg.Speech.Pause.Std()))
	}
	if cfg.Speech.PlayTimeout < 0 {
		errs = append(errs, errors.New("speech.play_timeout must not be negative"))
	}

	return errors.Join(errs...)
}
