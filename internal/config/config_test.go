package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kotoyomi/kotoyomi/internal/config"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug

discord:
  token: file-token
  command_guild_id: "123456789"

voicevox:
  url: http://voicevox:50021
  default_speaker: 3
  request_timeout: 45s

speech:
  pause: 500ms
  play_timeout: 90s

profile:
  postgres_dsn: postgres://kotoyomi@db/kotoyomi
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q", cfg.Server.LogLevel)
	}
	if cfg.Discord.Token != "file-token" {
		t.Errorf("token: got %q", cfg.Discord.Token)
	}
	if cfg.Voicevox.URL != "http://voicevox:50021" {
		t.Errorf("voicevox url: got %q", cfg.Voicevox.URL)
	}
	if cfg.Voicevox.DefaultSpeaker != 3 {
		t.Errorf("default_speaker: got %d", cfg.Voicevox.DefaultSpeaker)
	}
	if cfg.Voicevox.RequestTimeout.Std() != 45*time.Second {
		t.Errorf("request_timeout: got %s", cfg.Voicevox.RequestTimeout.Std())
	}
	if cfg.Speech.Pause.Std() != 500*time.Millisecond {
		t.Errorf("pause: got %s", cfg.Speech.Pause.Std())
	}
	if cfg.Profile.PostgresDSN == "" {
		t.Error("postgres_dsn not decoded")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader(`
discord:
  token: x
  shard_count: 4
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if !strings.Contains(err.Error(), "shard_count") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(`
discord:
  token: x
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr default: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Voicevox.URL != "http://localhost:50021" {
		t.Errorf("voicevox url default: got %q", cfg.Voicevox.URL)
	}
	if cfg.Voicevox.DefaultSpeaker != 1 {
		t.Errorf("default_speaker default: got %d", cfg.Voicevox.DefaultSpeaker)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("VOICEVOX_URL", "http://other:50021")
	t.Setenv("VOICEVOX_SPEAKER_ID", "8")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Discord.Token != "env-token" {
		t.Errorf("token: got %q, want env override", cfg.Discord.Token)
	}
	if cfg.Voicevox.URL != "http://other:50021" {
		t.Errorf("voicevox url: got %q, want env override", cfg.Voicevox.URL)
	}
	if cfg.Voicevox.DefaultSpeaker != 8 {
		t.Errorf("default_speaker: got %d, want 8", cfg.Voicevox.DefaultSpeaker)
	}
}

func TestEnvIgnoresMalformedSpeakerID(t *testing.T) {
	t.Setenv("VOICEVOX_SPEAKER_ID", "not-a-number")

	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Voicevox.DefaultSpeaker != 3 {
		t.Errorf("default_speaker: got %d, want file value 3", cfg.Voicevox.DefaultSpeaker)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing token",
			mutate:  func(c *config.Config) { c.Discord.Token = "" },
			wantErr: "discord.token",
		},
		{
			name:    "missing voicevox url",
			mutate:  func(c *config.Config) { c.Voicevox.URL = "" },
			wantErr: "voicevox.url",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "negative speaker",
			mutate:  func(c *config.Config) { c.Voicevox.DefaultSpeaker = -1 },
			wantErr: "default_speaker",
		},
		{
			name:    "negative pause",
			mutate:  func(c *config.Config) { c.Speech.Pause = config.Duration(-time.Second) },
			wantErr: "speech.pause",
		},
		{
			name:    "excessive pause",
			mutate:  func(c *config.Config) { c.Speech.Pause = config.Duration(time.Minute) },
			wantErr: "speech.pause",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Discord.Token = "x"
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &config.Config{}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"discord.token", "voicevox.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestLogLevelSlog(t *testing.T) {
	if config.LogDebug.Slog().String() != "DEBUG" {
		t.Error("debug mapping")
	}
	if config.LogLevel("bogus").Slog().String() != "INFO" {
		t.Error("unknown level should map to info")
	}
}
