package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Sink delivers a rendered announcement to a notification channel. Resolve
// checks that the channel is deliverable before a poll cycle fans out over a
// guild's trackers; an unresolvable channel skips the guild for that cycle.
type Sink interface {
	Resolve(ctx context.Context, channel string) error
	Send(ctx context.Context, channel, text string) error
}

// LogSink writes announcements to the structured log. It is the development
// default, and doubles as the sink of last resort when no platform sink is
// configured.
type LogSink struct{}

func (LogSink) Resolve(_ context.Context, channel string) error {
	if channel == "" {
		return errors.New("empty channel")
	}
	return nil
}

func (LogSink) Send(_ context.Context, channel, text string) error {
	slog.Info("live notification", slog.String("channel", channel), slog.String("message", text))
	return nil
}
