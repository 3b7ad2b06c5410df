// Package commands implements the user-facing command surface. Handlers return
// short confirmation or error strings for the hosting chat framework to display;
// registry validation failures are user feedback, not logged faults.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/streamspy/streamspy/tracker"
	"github.com/streamspy/streamspy/twitchapi"
)

// StatusClient is the Helix surface the status command needs.
type StatusClient interface {
	GetStreams(ctx context.Context, login string) ([]twitchapi.Stream, error)
}

const guildOnly = "This command can only be used in a server."

type Handler struct {
	Registry     *tracker.Registry
	Twitch       StatusClient
	DefaultLogin string
}

// Status reports the current live status of the default configured streamer.
func (h *Handler) Status(ctx context.Context) string {
	streams, err := h.Twitch.GetStreams(ctx, h.DefaultLogin)
	if err != nil {
		return "Could not reach Twitch right now, try again later."
	}
	if len(streams) == 0 {
		return fmt.Sprintf("%s is currently offline.", h.DefaultLogin)
	}
	s := streams[0]
	viewers := "unknown"
	if s.ViewerCount >= 0 {
		viewers = fmt.Sprintf("%d", s.ViewerCount)
	}
	return fmt.Sprintf("%s is live: %s (%s viewers)", h.DefaultLogin, s.DisplayTitle(), viewers)
}

// SelectChannel binds the invoking channel for notifications.
func (h *Handler) SelectChannel(ctx context.Context, guild, channel string) string {
	if guild == "" {
		return guildOnly
	}
	h.Registry.SelectChannel(ctx, guild, channel)
	return fmt.Sprintf("Notification channel set: %s", channel)
}

// AddStreamer registers a streamer, optionally with a custom template.
func (h *Handler) AddStreamer(ctx context.Context, guild, login, template string) string {
	if guild == "" {
		return guildOnly
	}
	channel, err := h.Registry.AddTracker(ctx, guild, login, template)
	switch {
	case errors.Is(err, tracker.ErrNoChannelSelected):
		return "Select a notification channel first."
	case errors.Is(err, tracker.ErrLimitExceeded):
		return fmt.Sprintf("Maximum number of trackers (%d) reached.", tracker.Limit)
	case err != nil:
		return "Could not add streamer."
	}
	return fmt.Sprintf("Now tracking **%s**. Notifications go to %s.", tracker.Normalize(login), channel)
}

// RemoveStreamer stops tracking a streamer.
func (h *Handler) RemoveStreamer(ctx context.Context, guild, login string) string {
	if guild == "" {
		return guildOnly
	}
	if err := h.Registry.RemoveTracker(ctx, guild, login); err != nil {
		return "Streamer not found."
	}
	return fmt.Sprintf("Stopped tracking **%s**.", tracker.Normalize(login))
}

// SetTemplate replaces the message template for a tracked streamer.
func (h *Handler) SetTemplate(ctx context.Context, guild, login, template string) string {
	if guild == "" {
		return guildOnly
	}
	if err := h.Registry.SetTemplate(ctx, guild, login, template); err != nil {
		return "Streamer not found."
	}
	return fmt.Sprintf("Template for **%s** updated.", tracker.Normalize(login))
}

// ListStreamers lists the guild's trackers in insertion order.
func (h *Handler) ListStreamers(guild string) string {
	if guild == "" {
		return guildOnly
	}
	trackers := h.Registry.ListTrackers(guild)
	if len(trackers) == 0 {
		return "No streamers configured."
	}
	var b strings.Builder
	b.WriteString("Tracked streamers:\n")
	for _, tr := range trackers {
		b.WriteString(fmt.Sprintf("- %s: %s\n", tr.Login, truncate(tr.Template, 80)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
