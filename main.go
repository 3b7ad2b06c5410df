// Command streamspy is the main entrypoint for the live-stream notification
// service. It:
//   - Loads configuration and initializes structured logging.
//   - Loads the durable guild configuration (JSON file or Postgres).
//   - Starts the poll engine that watches tracked Twitch streamers and fires
//     a notification on each offline-to-live transition.
//   - Exposes a minimal HTTP server with /healthz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/streamspy/streamspy/config"
	"github.com/streamspy/streamspy/notify"
	"github.com/streamspy/streamspy/poller"
	"github.com/streamspy/streamspy/server"
	"github.com/streamspy/streamspy/state"
	"github.com/streamspy/streamspy/telemetry"
	"github.com/streamspy/streamspy/twitchapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidatePollReady(); err != nil {
		slog.Error("twitch credentials missing", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("streamspy", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Durable state: Postgres when DB_DSN is set, JSON file otherwise.
	var store state.Store
	if cfg.DBDsn != "" {
		pg, err := state.NewPGStore(context.Background(), cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open postgres state store", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				slog.Error("failed to close postgres state store", slog.Any("err", err))
			}
		}()
		store = pg
		slog.Info("using postgres state store")
	} else {
		store = state.NewFileStore(cfg.StatePath)
		slog.Info("using file state store", slog.String("path", cfg.StatePath))
	}
	st := state.NewStateStore(store)
	if err := st.Load(context.Background()); err != nil {
		slog.Error("failed to load state", slog.Any("err", err))
		os.Exit(1)
	}

	// Twitch Helix client with cached app access token. The shared client
	// bounds every token and status call so a hung connection cannot wedge
	// the poll loop.
	httpClient := &http.Client{Timeout: 30 * time.Second}
	tokenSource := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
	helix := &twitchapi.HelixClient{AppTokenSource: tokenSource, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}

	// Best-effort token warmup so credential problems surface at startup.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 8*time.Second)
	if tok, err := tokenSource.Get(warmCtx); err != nil {
		slog.Warn("twitch app token fetch failed", slog.Any("err", err))
	} else if len(tok) > 6 {
		masked := "***" + tok[len(tok)-6:]
		slog.Info("twitch app token acquired", slog.String("tail", masked))
	}
	warmCancel()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Notification sink
	var sink notify.Sink
	switch cfg.NotifySink {
	case "webhook":
		sink = notify.NewWebhookSink()
	case "irc":
		if err := cfg.ValidateIRCReady(); err != nil {
			slog.Error("irc sink selected but not configured", slog.Any("err", err))
			os.Exit(1)
		}
		irc := notify.NewIRCSink(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
		irc.Start(ctx)
		sink = irc
	case "log", "":
		sink = notify.LogSink{}
	default:
		slog.Error("unknown NOTIFY_SINK", slog.String("value", cfg.NotifySink))
		os.Exit(1)
	}
	slog.Info("notification sink selected", slog.String("sink", cfg.NotifySink))

	// Poll engine
	engine := &poller.Engine{
		State:           st,
		Twitch:          helix,
		Sink:            sink,
		Interval:        cfg.PollInterval,
		DefaultTemplate: config.DefaultTemplate,
	}
	go engine.Start(ctx)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	go func() {
		if err := server.Start(ctx, st, engine, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
