package state

import (
	"context"
	"errors"
	"testing"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	snap    Snapshot
	saves   int
	saveErr error
}

func newMemStore() *memStore { return &memStore{snap: EmptySnapshot()} }

func (m *memStore) Load(context.Context) (Snapshot, error) { return m.snap, nil }

func (m *memStore) Save(_ context.Context, snap Snapshot) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.snap = snap
	return nil
}

func TestStateStoreTrackerOrder(t *testing.T) {
	s := NewStateStore(newMemStore())
	ctx := context.Background()

	for _, login := range []string{"zoe", "alpha", "mid"} {
		s.PutTracker(ctx, "g1", login, "t")
	}
	got := s.Trackers("g1")
	want := []string{"zoe", "alpha", "mid"}
	if len(got) != len(want) {
		t.Fatalf("Trackers() returned %d entries, want %d", len(got), len(want))
	}
	for i, tr := range got {
		if tr.Login != want[i] {
			t.Errorf("Trackers()[%d] = %s, want %s (insertion order)", i, tr.Login, want[i])
		}
	}
}

func TestStateStoreRemoveClearsLiveFlag(t *testing.T) {
	s := NewStateStore(newMemStore())
	ctx := context.Background()

	s.PutTracker(ctx, "g1", "ninja", "t")
	s.SetLive("g1", "ninja", true)
	if !s.RemoveTracker(ctx, "g1", "ninja") {
		t.Fatal("RemoveTracker() = false, want true")
	}
	if s.Live("g1", "ninja") {
		t.Error("live flag survived tracker removal")
	}
	if s.RemoveTracker(ctx, "g1", "ninja") {
		t.Error("RemoveTracker() on absent tracker = true, want false")
	}
}

func TestStateStoreLoadResetsLiveFlags(t *testing.T) {
	ms := newMemStore()
	s := NewStateStore(ms)
	ctx := context.Background()

	s.PutTracker(ctx, "g1", "ninja", "t")
	s.SetLive("g1", "ninja", true)

	// Reload simulates a restart: configuration survives, live flags do not.
	if err := s.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := s.Template("g1", "ninja"); !ok {
		t.Error("tracker configuration lost on reload")
	}
	if s.Live("g1", "ninja") {
		t.Error("live flag persisted across reload, want reset to false")
	}
}

func TestStateStoreSaveFailureKeepsState(t *testing.T) {
	ms := newMemStore()
	s := NewStateStore(ms)
	ctx := context.Background()

	ms.saveErr = errors.New("disk full")
	s.PutTracker(ctx, "g1", "ninja", "t")
	if _, ok := s.Template("g1", "ninja"); !ok {
		t.Error("in-memory state lost after failed save")
	}

	// Next successful save catches up with everything.
	ms.saveErr = nil
	s.SelectChannel(ctx, "g1", "chan-1")
	if ms.snap.Trackers["g1"]["ninja"] != "t" {
		t.Error("recovered save did not include earlier unpersisted mutation")
	}
	if ms.snap.Selected["g1"] != "chan-1" {
		t.Error("recovered save missing channel selection")
	}
}

func TestStateStoreSelectChannelPersists(t *testing.T) {
	ms := newMemStore()
	s := NewStateStore(ms)

	s.SelectChannel(context.Background(), "g1", "chan-9")
	if ms.saves != 1 {
		t.Errorf("SelectChannel() triggered %d saves, want 1", ms.saves)
	}
	if ms.snap.Selected["g1"] != "chan-9" {
		t.Errorf("persisted channel = %q, want chan-9", ms.snap.Selected["g1"])
	}
}

func TestStateStoreAddTrackerOutcomes(t *testing.T) {
	s := NewStateStore(newMemStore())
	ctx := context.Background()

	if _, outcome := s.AddTracker(ctx, "g1", "ninja", "t", 2); outcome != AddNoChannel {
		t.Errorf("AddTracker() without channel outcome = %v, want AddNoChannel", outcome)
	}
	s.SelectChannel(ctx, "g1", "chan-1")

	channel, outcome := s.AddTracker(ctx, "g1", "ninja", "t", 2)
	if outcome != TrackerAdded || channel != "chan-1" {
		t.Errorf("AddTracker() = (%q, %v), want (chan-1, TrackerAdded)", channel, outcome)
	}
	if _, outcome := s.AddTracker(ctx, "g1", "pokimane", "t", 2); outcome != TrackerAdded {
		t.Errorf("AddTracker() second login outcome = %v, want TrackerAdded", outcome)
	}
	if _, outcome := s.AddTracker(ctx, "g1", "shroud", "t", 2); outcome != AddLimitReached {
		t.Errorf("AddTracker() over limit outcome = %v, want AddLimitReached", outcome)
	}
	// Replacing an existing login does not consume a slot.
	if _, outcome := s.AddTracker(ctx, "g1", "ninja", "t2", 2); outcome != TrackerReplaced {
		t.Errorf("AddTracker() replace at limit outcome = %v, want TrackerReplaced", outcome)
	}
	if got := s.TrackerCount("g1"); got != 2 {
		t.Errorf("TrackerCount() = %d, want 2", got)
	}
}

func TestStateStoreUpdateTemplateNeverCreates(t *testing.T) {
	s := NewStateStore(newMemStore())
	ctx := context.Background()

	if s.UpdateTemplate(ctx, "g1", "ninja", "t") {
		t.Error("UpdateTemplate() on absent tracker = true, want false")
	}
	if _, ok := s.Template("g1", "ninja"); ok {
		t.Error("UpdateTemplate() created a tracker")
	}

	s.PutTracker(ctx, "g1", "ninja", "t")
	if !s.UpdateTemplate(ctx, "g1", "ninja", "t2") {
		t.Error("UpdateTemplate() on existing tracker = false, want true")
	}
	if tmpl, _ := s.Template("g1", "ninja"); tmpl != "t2" {
		t.Errorf("template = %q, want t2", tmpl)
	}
}

func TestStateStoreGuildsAndCounts(t *testing.T) {
	s := NewStateStore(newMemStore())
	ctx := context.Background()

	s.PutTracker(ctx, "g2", "b", "t")
	s.PutTracker(ctx, "g1", "a", "t")
	s.SetLive("g1", "a", true)

	guilds := s.Guilds()
	if len(guilds) != 2 || guilds[0] != "g1" || guilds[1] != "g2" {
		t.Errorf("Guilds() = %v, want [g1 g2]", guilds)
	}
	total, live := s.Counts()
	if total != 2 || live != 1 {
		t.Errorf("Counts() = (%d, %d), want (2, 1)", total, live)
	}
}
