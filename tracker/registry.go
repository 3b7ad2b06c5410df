// Package tracker is the command-facing API for managing tracked streamers.
// It validates mutations (channel selected, capacity, existence), normalizes
// logins, and delegates persistence to the state store. Validation failures
// are typed errors for the command layer to render; they are expected user
// input problems, not faults.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/streamspy/streamspy/state"
)

// Limit is the maximum number of tracked streamers per guild.
const Limit = 50

var (
	ErrNoChannelSelected = errors.New("no notification channel selected")
	ErrLimitExceeded     = fmt.Errorf("tracker limit (%d) reached", Limit)
	ErrNotFound          = errors.New("streamer not tracked")
)

type Registry struct {
	state           *state.StateStore
	defaultTemplate string
}

func NewRegistry(st *state.StateStore, defaultTemplate string) *Registry {
	return &Registry{state: st, defaultTemplate: defaultTemplate}
}

// Normalize lower-cases a streamer login; all storage and lookups use the
// normalized form.
func Normalize(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// SelectChannel binds the guild's notification channel and persists
// immediately, so a selection without any tracker add survives a restart.
func (r *Registry) SelectChannel(ctx context.Context, guild, channel string) {
	r.state.SelectChannel(ctx, guild, channel)
}

// AddTracker registers a streamer for a guild and returns the channel
// notifications will go to. An empty template selects the default. Validation
// and insert happen atomically in the state store; chat frameworks dispatch
// command handlers on separate goroutines, so a check here followed by a
// separate insert could admit trackers past the limit.
func (r *Registry) AddTracker(ctx context.Context, guild, login, template string) (string, error) {
	if template == "" {
		template = r.defaultTemplate
	}
	channel, outcome := r.state.AddTracker(ctx, guild, Normalize(login), template, Limit)
	switch outcome {
	case state.AddNoChannel:
		return "", ErrNoChannelSelected
	case state.AddLimitReached:
		return "", ErrLimitExceeded
	}
	return channel, nil
}

// RemoveTracker deletes a tracked streamer and its live flag.
func (r *Registry) RemoveTracker(ctx context.Context, guild, login string) error {
	if !r.state.RemoveTracker(ctx, guild, Normalize(login)) {
		return ErrNotFound
	}
	return nil
}

// SetTemplate replaces the message template of an existing tracker.
// An empty template selects the default.
func (r *Registry) SetTemplate(ctx context.Context, guild, login, template string) error {
	if template == "" {
		template = r.defaultTemplate
	}
	if !r.state.UpdateTemplate(ctx, guild, Normalize(login), template) {
		return ErrNotFound
	}
	return nil
}

// ListTrackers returns the guild's trackers in insertion order.
func (r *Registry) ListTrackers(guild string) []state.Tracker {
	return r.state.Trackers(guild)
}
