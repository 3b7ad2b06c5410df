// Package state owns the per-guild configuration (notification channel, tracked
// streamers with message templates) and the in-memory live/offline flags. The
// configuration is durable through a pluggable Store; live flags reset on restart.
package state

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Snapshot is the persisted shape of the guild configuration.
type Snapshot struct {
	Selected map[string]string            `json:"selected"`
	Trackers map[string]map[string]string `json:"trackers"`
}

// EmptySnapshot returns a snapshot with initialized (non-nil) maps.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Selected: map[string]string{},
		Trackers: map[string]map[string]string{},
	}
}

// Store is the durable persistence contract for guild configuration.
// Load must not fail on a missing or malformed backing store; it degrades to
// an empty snapshot so the service always starts.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Tracker is one tracked streamer within a guild.
type Tracker struct {
	Login    string
	Template string
}

// StateStore is the single runtime owner of the guild maps. All access goes
// through its methods; command handlers and the poll cycle can race, so every
// method takes the lock. Mutations persist synchronously; a failed save keeps
// the in-memory state and is logged (the next successful save catches up).
type StateStore struct {
	store Store

	mu       sync.RWMutex
	selected map[string]string            // guild -> channel
	trackers map[string]map[string]string // guild -> login -> template
	order    map[string][]string          // guild -> logins in insertion order
	live     map[string]map[string]bool   // guild -> login -> currently live
}

func NewStateStore(store Store) *StateStore {
	return &StateStore{
		store:    store,
		selected: map[string]string{},
		trackers: map[string]map[string]string{},
		order:    map[string][]string{},
		live:     map[string]map[string]bool{},
	}
}

// Load replaces the in-memory configuration from the backing store. Live flags
// are reset: a restart re-observes every tracker from "not live".
func (s *StateStore) Load(ctx context.Context) error {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = map[string]string{}
	for g, ch := range snap.Selected {
		s.selected[g] = ch
	}
	s.trackers = map[string]map[string]string{}
	s.order = map[string][]string{}
	s.live = map[string]map[string]bool{}
	for g, trackers := range snap.Trackers {
		m := map[string]string{}
		logins := make([]string, 0, len(trackers))
		for login, tmpl := range trackers {
			m[login] = tmpl
			logins = append(logins, login)
		}
		// Insertion order is not part of the persisted shape; sort for a
		// deterministic order after restart.
		sort.Strings(logins)
		s.trackers[g] = m
		s.order[g] = logins
	}
	slog.Info("loaded streamspy state", slog.Int("guilds", len(s.trackers)))
	return nil
}

func (s *StateStore) snapshotLocked() Snapshot {
	snap := EmptySnapshot()
	for g, ch := range s.selected {
		snap.Selected[g] = ch
	}
	for g, trackers := range s.trackers {
		m := map[string]string{}
		for login, tmpl := range trackers {
			m[login] = tmpl
		}
		snap.Trackers[g] = m
	}
	return snap
}

// saveLocked persists the current configuration. Callers hold the write lock,
// which also serializes writers on the backing store.
func (s *StateStore) saveLocked(ctx context.Context) {
	if err := s.store.Save(ctx, s.snapshotLocked()); err != nil {
		slog.Warn("failed to save streamspy state; keeping in-memory state", slog.Any("err", err))
		return
	}
	slog.Debug("saved streamspy state", slog.Int("guilds", len(s.trackers)))
}

// Save persists the current configuration on demand.
func (s *StateStore) Save(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveLocked(ctx)
}

// SelectChannel binds the notification channel for a guild and persists.
func (s *StateStore) SelectChannel(ctx context.Context, guild, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[guild] = channel
	s.saveLocked(ctx)
}

// Channel returns the selected channel for a guild, if any.
func (s *StateStore) Channel(guild string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.selected[guild]
	return ch, ok
}

// PutTracker stores (or replaces) a tracker and persists. New trackers start
// with their live flag off.
func (s *StateStore) PutTracker(ctx context.Context, guild, login, template string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trackers[guild] == nil {
		s.trackers[guild] = map[string]string{}
	}
	if _, exists := s.trackers[guild][login]; !exists {
		s.order[guild] = append(s.order[guild], login)
		if s.live[guild] == nil {
			s.live[guild] = map[string]bool{}
		}
		s.live[guild][login] = false
	}
	s.trackers[guild][login] = template
	s.saveLocked(ctx)
}

// AddOutcome reports how AddTracker disposed of a request.
type AddOutcome int

const (
	TrackerAdded AddOutcome = iota
	TrackerReplaced
	AddNoChannel
	AddLimitReached
)

// AddTracker validates and inserts a tracker under a single write lock, so
// concurrent adds racing at the capacity boundary cannot both pass the limit
// check. Replacing an existing tracker does not consume a slot. On success it
// returns the guild's selected channel.
func (s *StateStore) AddTracker(ctx context.Context, guild, login, template string, limit int) (string, AddOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := s.selected[guild]
	if !ok {
		return "", AddNoChannel
	}
	_, exists := s.trackers[guild][login]
	if !exists && len(s.trackers[guild]) >= limit {
		return "", AddLimitReached
	}
	if s.trackers[guild] == nil {
		s.trackers[guild] = map[string]string{}
	}
	outcome := TrackerReplaced
	if !exists {
		outcome = TrackerAdded
		s.order[guild] = append(s.order[guild], login)
		if s.live[guild] == nil {
			s.live[guild] = map[string]bool{}
		}
		s.live[guild][login] = false
	}
	s.trackers[guild][login] = template
	s.saveLocked(ctx)
	return channel, outcome
}

// UpdateTemplate replaces the template of an existing tracker and reports
// whether it existed. Unlike PutTracker it never creates a tracker, so a
// concurrent removal wins the race instead of being silently undone.
func (s *StateStore) UpdateTemplate(ctx context.Context, guild, login, template string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackers[guild][login]; !ok {
		return false
	}
	s.trackers[guild][login] = template
	s.saveLocked(ctx)
	return true
}

// RemoveTracker deletes a tracker and its live flag and persists.
// It reports whether the tracker existed.
func (s *StateStore) RemoveTracker(ctx context.Context, guild, login string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trackers[guild][login]; !ok {
		return false
	}
	delete(s.trackers[guild], login)
	delete(s.live[guild], login)
	logins := s.order[guild]
	for i, l := range logins {
		if l == login {
			s.order[guild] = append(logins[:i], logins[i+1:]...)
			break
		}
	}
	s.saveLocked(ctx)
	return true
}

// Template returns the template of an existing tracker.
func (s *StateStore) Template(guild, login string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.trackers[guild][login]
	return tmpl, ok
}

// TrackerCount returns the number of trackers configured for a guild.
func (s *StateStore) TrackerCount(guild string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trackers[guild])
}

// Trackers returns the guild's trackers in insertion order.
func (s *StateStore) Trackers(guild string) []Tracker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Tracker, 0, len(s.order[guild]))
	for _, login := range s.order[guild] {
		out = append(out, Tracker{Login: login, Template: s.trackers[guild][login]})
	}
	return out
}

// Guilds returns the ids of guilds with at least one tracker.
func (s *StateStore) Guilds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.trackers))
	for g, trackers := range s.trackers {
		if len(trackers) > 0 {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// Live returns the live flag for a tracker; unseen trackers are not live.
func (s *StateStore) Live(guild, login string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[guild][login]
}

// SetLive records the latest observation for a tracker.
func (s *StateStore) SetLive(guild, login string, isLive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[guild] == nil {
		s.live[guild] = map[string]bool{}
	}
	s.live[guild][login] = isLive
}

// Counts returns (total trackers, currently live trackers) across all guilds.
func (s *StateStore) Counts() (total, live int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, trackers := range s.trackers {
		total += len(trackers)
	}
	for _, flags := range s.live {
		for _, isLive := range flags {
			if isLive {
				live++
			}
		}
	}
	return total, live
}
