// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles         prometheus.Counter
	StatusChecks       prometheus.Counter
	StatusCheckErrors  prometheus.Counter
	NotificationsSent  prometheus.Counter
	NotificationErrors prometheus.Counter
	TokenRefreshes     prometheus.Counter

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	LiveTrackersGauge    prometheus.Gauge
	TrackedStreamerGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_poll_cycles_total", Help: "Number of completed poll cycles"})
		StatusChecks = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_status_checks_total", Help: "Number of Helix stream status queries"})
		StatusCheckErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_status_check_errors_total", Help: "Number of failed stream status queries"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_notifications_sent_total", Help: "Number of live notifications delivered"})
		NotificationErrors = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_notification_errors_total", Help: "Number of live notifications that failed to deliver"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "streamspy_token_refreshes_total", Help: "Number of Twitch app token refreshes"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamspy_cycle_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
		LiveTrackersGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamspy_live_trackers", Help: "Trackers currently considered live"})
		TrackedStreamerGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamspy_tracked_streamers", Help: "Total configured trackers across all guilds"})
	})
}

// SetLiveTrackers records the number of trackers currently flagged live.
func SetLiveTrackers(n int) {
	if LiveTrackersGauge != nil {
		LiveTrackersGauge.Set(float64(n))
	}
}

// SetTrackedStreamers records the total configured tracker count.
func SetTrackedStreamers(n int) {
	if TrackedStreamerGauge != nil {
		TrackedStreamerGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
