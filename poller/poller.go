// Package poller drives the live-status polling loop. On a fixed interval it
// walks every guild with a selected channel and tracked streamers, queries the
// Helix API for each tracker, and fires a notification exactly once per
// offline-to-live transition. Level does not retrigger: a streamer staying
// live produces no further announcements until they go offline and return.
package poller

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspy/streamspy/notify"
	"github.com/streamspy/streamspy/state"
	"github.com/streamspy/streamspy/telemetry"
	"github.com/streamspy/streamspy/twitchapi"
)

// StatusClient is the subset of the Helix client the engine needs.
type StatusClient interface {
	GetStreams(ctx context.Context, login string) ([]twitchapi.Stream, error)
}

type Engine struct {
	State           *state.StateStore
	Twitch          StatusClient
	Sink            notify.Sink
	Interval        time.Duration
	DefaultTemplate string

	// cycleMu is a non-reentrant scheduling guard: a tick that arrives while
	// the previous cycle is still running is skipped, never queued.
	cycleMu sync.Mutex

	statusMu    sync.Mutex
	lastCycleAt time.Time
	lastCycleD  time.Duration
}

// Start runs one cycle immediately, then repeats on the configured interval
// until the context is cancelled. No new cycle starts after cancellation; an
// in-flight cycle finishes its iteration body.
func (e *Engine) Start(ctx context.Context) {
	interval := e.Interval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("poller started", slog.Duration("interval", interval))
	for {
		if ctx.Err() != nil {
			return
		}
		e.RunCycle(ctx)
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunCycle performs a single poll over all guilds. Failures are isolated per
// tracker: an error while checking one streamer never aborts the rest of the
// cycle.
func (e *Engine) RunCycle(ctx context.Context) {
	if !e.cycleMu.TryLock() {
		slog.Warn("previous poll cycle still running; skipping tick")
		return
	}
	defer e.cycleMu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())
	ctx, span := telemetry.StartSpan(ctx, "poller", "poll-cycle")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx)

	d := telemetry.TimeFunc(telemetry.CycleDuration, func() {
		for _, guild := range e.State.Guilds() {
			channel, ok := e.State.Channel(guild)
			if !ok {
				logger.Debug("no selected channel; skipping guild", slog.String("guild", guild))
				continue
			}
			if err := e.Sink.Resolve(ctx, channel); err != nil {
				// State untouched; the guild is re-attempted next cycle.
				logger.Warn("selected channel unresolvable; skipping guild",
					slog.String("guild", guild), slog.String("channel", channel), slog.Any("err", err))
				continue
			}
			for _, tr := range e.State.Trackers(guild) {
				e.checkTracker(ctx, guild, channel, tr)
			}
		}
	})

	if telemetry.PollCycles != nil {
		telemetry.PollCycles.Inc()
	}
	total, live := e.State.Counts()
	telemetry.SetTrackedStreamers(total)
	telemetry.SetLiveTrackers(live)

	e.statusMu.Lock()
	e.lastCycleAt = time.Now()
	e.lastCycleD = d
	e.statusMu.Unlock()
	logger.Debug("poll cycle complete", slog.Duration("took", d), slog.Int("trackers", total), slog.Int("live", live))
}

func (e *Engine) checkTracker(ctx context.Context, guild, channel string, tr state.Tracker) {
	logger := telemetry.LoggerWithCorr(ctx)
	if telemetry.StatusChecks != nil {
		telemetry.StatusChecks.Inc()
	}
	streams, err := e.Twitch.GetStreams(ctx, tr.Login)
	if err != nil {
		// Token acquisition failure. The live flag is untouched, so a missed
		// observation cannot swallow a rising edge.
		if telemetry.StatusCheckErrors != nil {
			telemetry.StatusCheckErrors.Inc()
		}
		logger.Error("status check failed", slog.String("guild", guild), slog.String("streamer", tr.Login), slog.Any("err", err))
		return
	}

	isLive := len(streams) > 0
	if isLive && !e.State.Live(guild, tr.Login) {
		s := streams[0]
		rc := notify.RenderContext{
			Streamer: tr.Login,
			Title:    s.DisplayTitle(),
			Viewers:  viewersString(s.ViewerCount),
			URL:      "https://twitch.tv/" + tr.Login,
		}
		msg := notify.RenderOrDefault(tr.Template, e.DefaultTemplate, rc)
		if err := e.Sink.Send(ctx, channel, msg); err != nil {
			if telemetry.NotificationErrors != nil {
				telemetry.NotificationErrors.Inc()
			}
			logger.Error("notification send failed",
				slog.String("guild", guild), slog.String("channel", channel), slog.String("streamer", tr.Login), slog.Any("err", err))
		} else {
			if telemetry.NotificationsSent != nil {
				telemetry.NotificationsSent.Inc()
			}
			logger.Info("streamer live",
				slog.String("guild", guild), slog.String("channel", channel), slog.String("streamer", tr.Login),
				slog.String("title", rc.Title), slog.String("viewers", rc.Viewers), slog.String("url", rc.URL))
		}
	}
	e.State.SetLive(guild, tr.Login, isLive)
}

func viewersString(n int) string {
	if n < 0 {
		return "unknown"
	}
	return strconv.Itoa(n)
}

// LastCycle returns when the last cycle finished and how long it took.
func (e *Engine) LastCycle() (time.Time, time.Duration) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	return e.lastCycleAt, e.lastCycleD
}
