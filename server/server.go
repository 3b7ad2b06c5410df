// Package server exposes the HTTP surface: health, status, and metrics. It
// injects correlation IDs into request contexts for consistent logging.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/streamspy/streamspy/poller"
	"github.com/streamspy/streamspy/state"
	"github.com/streamspy/streamspy/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

type statusPayload struct {
	Guilds        int       `json:"guilds"`
	Trackers      int       `json:"trackers"`
	Live          int       `json:"live"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
	LastCycleMsec int64     `json:"last_cycle_msec"`
}

// NewMux returns the HTTP handler with all routes.
func NewMux(st *state.StateStore, engine *poller.Engine) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		total, live := st.Counts()
		at, d := engine.LastCycle()
		payload := statusPayload{
			Guilds:        len(st.Guilds()),
			Trackers:      total,
			Live:          live,
			LastCycleAt:   at,
			LastCycleMsec: d.Milliseconds(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("failed to encode status payload", slog.Any("err", err))
		}
	})

	// Correlation ID injector and tracing wrapper.
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))
		mux.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, st *state.StateStore, engine *poller.Engine, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(st, engine),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
