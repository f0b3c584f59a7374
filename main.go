// Command liveroom is the multi-host live event relay.
// It:
//   - Loads configuration and initializes structured logging.
//   - Builds the live source, the broadcast router and the session registry.
//   - Optionally journals events to Postgres and mirrors them to Redis.
//   - Serves the subscriber WebSocket, the HTTP API and the overlay pages.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/clock"
	"github.com/onnwee/liveroom/commentary"
	"github.com/onnwee/liveroom/config"
	"github.com/onnwee/liveroom/db"
	"github.com/onnwee/liveroom/livesource"
	"github.com/onnwee/liveroom/server"
	"github.com/onnwee/liveroom/session"
	"github.com/onnwee/liveroom/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	setupLogging(cfg)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("liveroom", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("liveroom exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shut down cleanly")
}

func run(ctx context.Context, cfg *config.Config) error {
	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	router := broadcast.NewRouter(broadcast.WithDefaultMirror(cfg.LegacyDefaultMirror))
	publishers := session.Publishers{router}
	g, gctx := errgroup.WithContext(ctx)

	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			return err
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
		journal := db.NewJournal(database, db.DefaultQueueSize)
		publishers = append(publishers, journal)
		g.Go(func() error { return journal.Run(gctx) })
	} else {
		slog.Info("event journal disabled (DB_DSN not set)")
	}

	deps := server.Deps{Config: cfg, Router: router, DB: database}
	if cfg.RedisURL != "" {
		mirror, err := broadcast.NewMirror(ctx, cfg.RedisURL, broadcast.DefaultChannelPrefix)
		if err != nil {
			return err
		}
		defer mirror.Close()
		publishers = append(publishers, mirror)
		deps.Redis = mirror
		deps.Mirror = mirror
		g.Go(func() error { return mirror.Run(gctx) })
	}

	reg := session.NewRegistry(session.NewGate(cfg.AccessPIN, cfg.Hosts), session.Deps{
		Clock:     clock.Real(),
		Publisher: publishers,
		Source:    src,
		Grace:     cfg.Grace,
	})
	defer reg.Close()
	deps.Registry = reg

	deps.Voice = commentary.New(commentary.Config{
		OpenAIKey:     cfg.OpenAIKey,
		ElevenLabsKey: cfg.ElevenLabsKey,
		VoiceID:       cfg.ElevenLabsVoiceID,
	})
	if !cfg.VoiceEnabled() {
		slog.Info("voice commentary disabled (OPENAI_API_KEY / ELEVENLABS_API_KEY not set)")
	}

	slog.Info("starting relay",
		slog.String("live_source", cfg.SourceKind()),
		slog.Bool("legacy_default_mirror", cfg.LegacyDefaultMirror),
		slog.Bool("access_control", !reg.Gate().Open()),
		slog.Int("hosts", len(cfg.Hosts)))

	g.Go(func() error { return server.Start(gctx, deps, ":"+cfg.Port) })
	return g.Wait()
}

// buildSource returns nil when live mode is disabled.
func buildSource(cfg *config.Config) (livesource.Source, error) {
	kind := cfg.SourceKind()
	if kind == "none" {
		slog.Warn("no live source configured; only demo and bot modes are available")
		return nil, nil
	}
	return livesource.New(kind, livesource.Options{
		WebcastURL:         cfg.WebcastURL,
		WebcastAPIKey:      cfg.WebcastAPIKey,
		TwitchClientID:     cfg.TwitchClientID,
		TwitchClientSecret: cfg.TwitchClientSecret,
		TwitchHelixURL:     cfg.TwitchHelixURL,
		YouTubeAPIKey:      cfg.YouTubeAPIKey,
	})
}

// setupLogging configures the default slog logger (level + format). With
// LOG_FILE set, output also goes to a rotated file.
func setupLogging(cfg *config.Config) {
	lvl := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", cfg.LogFormat))
}
