// Command kotoyomi is a Discord reader bot: it joins a voice channel and
// reads a bound text channel aloud through a VOICEVOX engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/kotoyomi/kotoyomi/internal/config"
	discordbot "github.com/kotoyomi/kotoyomi/internal/discord"
	"github.com/kotoyomi/kotoyomi/internal/health"
	"github.com/kotoyomi/kotoyomi/internal/observe"
	"github.com/kotoyomi/kotoyomi/internal/profile"
	"github.com/kotoyomi/kotoyomi/internal/resilience"
	"github.com/kotoyomi/kotoyomi/internal/speech"
	"github.com/kotoyomi/kotoyomi/pkg/voicevox"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional; env vars override)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kotoyomi: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Server.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("kotoyomi starting",
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"voicevox_url", cfg.Voicevox.URL,
		"default_speaker", cfg.Voicevox.DefaultSpeaker,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "kotoyomi",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Synthesis engine ──────────────────────────────────────────────────────
	var engineOpts []voicevox.Option
	if cfg.Voicevox.RequestTimeout > 0 {
		engineOpts = append(engineOpts, voicevox.WithTimeout(cfg.Voicevox.RequestTimeout.Std()))
	}
	engine := voicevox.New(cfg.Voicevox.URL, engineOpts...)
	if engine.CheckReachable(ctx) {
		slog.Info("voicevox engine reachable", "url", cfg.Voicevox.URL)
	} else {
		// Not fatal: the engine may come up later, items fail one by one.
		slog.Warn("voicevox engine unreachable", "url", cfg.Voicevox.URL)
	}

	// ── Voice profiles ────────────────────────────────────────────────────────
	var profiles profile.Store
	if dsn := cfg.Profile.PostgresDSN; dsn != "" {
		pg, err := profile.NewPostgresStore(ctx, dsn, cfg.Voicevox.DefaultSpeaker)
		if err != nil {
			slog.Error("failed to connect profile store", "err", err)
			return 1
		}
		defer pg.Close()
		profiles = pg
		slog.Info("voice profiles persisted to postgres")
	} else {
		profiles = profile.NewMemoryStore(cfg.Voicevox.DefaultSpeaker)
		slog.Info("voice profiles kept in memory")
	}

	// ── Speech core ───────────────────────────────────────────────────────────
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name: "voicevox",
	})
	manager := speech.NewManager(speech.ManagerConfig{
		Profiles:    profiles,
		Synthesizer: speech.NewBreakerSynthesizer(engine, breaker),
		Metrics:     metrics,
		Pause:       cfg.Speech.Pause.Std(),
		PlayTimeout: cfg.Speech.PlayTimeout.Std(),
	})
	defer manager.Close()

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(discordbot.BotConfig{
		Token:          cfg.Discord.Token,
		CommandGuildID: cfg.Discord.CommandGuildID,
		Speech:         manager,
		Profiles:       profiles,
		Engine:         engine,
	})
	if err != nil {
		slog.Error("failed to start Discord bot", "err", err)
		return 1
	}

	// ── HTTP: health + metrics ────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(health.Engine(engine.CheckReachable)).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("discord bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("kotoyomi ready — press Ctrl+C to shut down")

	err = g.Wait()

	slog.Info("shutdown signal received, stopping…")
	if closeErr := bot.Close(); closeErr != nil {
		slog.Warn("discord bot close error", "err", closeErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
