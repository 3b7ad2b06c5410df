package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streamspy/streamspy/notify"
	"github.com/streamspy/streamspy/state"
	"github.com/streamspy/streamspy/twitchapi"
)

const defaultTemplate = ":red_circle: {streamer} is now live on Twitch!\n{title}\nViewers: {viewers}\n{url}"

type nopStore struct{}

func (nopStore) Load(context.Context) (state.Snapshot, error) { return state.EmptySnapshot(), nil }
func (nopStore) Save(context.Context, state.Snapshot) error   { return nil }

// scriptedClient replays a fixed sequence of live/offline observations per login.
type scriptedClient struct {
	mu      sync.Mutex
	scripts map[string][]bool // true = live
	calls   map[string]int
	errs    map[string]error
}

func (c *scriptedClient) GetStreams(_ context.Context, login string) ([]twitchapi.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.errs[login]; err != nil {
		return nil, err
	}
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	i := c.calls[login]
	c.calls[login]++
	script := c.scripts[login]
	if i >= len(script) || !script[i] {
		return nil, nil
	}
	return []twitchapi.Stream{{UserLogin: login, Title: "playing", ViewerCount: 42}}, nil
}

// recordingSink records sends and can refuse to resolve or deliver.
type recordingSink struct {
	mu         sync.Mutex
	sent       []string
	resolveErr error
	sendErr    error
}

func (s *recordingSink) Resolve(context.Context, string) error { return s.resolveErr }

func (s *recordingSink) Send(_ context.Context, channel, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, channel+"|"+text)
	return nil
}

func (s *recordingSink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func newTestEngine(client StatusClient, sink notify.Sink) (*Engine, *state.StateStore) {
	st := state.NewStateStore(nopStore{})
	return &Engine{
		State:           st,
		Twitch:          client,
		Sink:            sink,
		DefaultTemplate: defaultTemplate,
	}, st
}

func TestEdgeDetection(t *testing.T) {
	// offline, offline, live, live, offline, live: notifications fire only on
	// the two rising edges (cycles 3 and 6).
	client := &scriptedClient{scripts: map[string][]bool{
		"ninja": {false, false, true, true, false, true},
	}}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "")

	for i := 0; i < 6; i++ {
		engine.RunCycle(ctx)
	}
	if got := len(sink.messages()); got != 2 {
		t.Errorf("got %d notifications, want exactly 2 (rising edges only): %v", got, sink.messages())
	}
}

func TestNotificationContent(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{"ninja": {true}}}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "{streamer} @ {url} ({viewers} watching): {title}")

	engine.RunCycle(ctx)
	msgs := sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d notifications, want 1", len(msgs))
	}
	want := "chan-1|ninja @ https://twitch.tv/ninja (42 watching): playing"
	if msgs[0] != want {
		t.Errorf("notification = %q, want %q", msgs[0], want)
	}
}

func TestBadTemplateFallsBackToDefault(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{"ninja": {true}}}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "{streamer} {bogus_field}")

	engine.RunCycle(ctx)
	msgs := sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d notifications, want 1 (fallback, not a dropped message)", len(msgs))
	}
	if !strings.Contains(msgs[0], "ninja is now live on Twitch!") {
		t.Errorf("expected default template output, got %q", msgs[0])
	}
	if !st.Live("g1", "ninja") {
		t.Error("live flag not updated despite template fallback")
	}
}

func TestUnresolvableChannelSkipsGuildAndKeepsState(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{"ninja": {true, true}}}
	sink := &recordingSink{resolveErr: errors.New("channel gone")}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "")

	engine.RunCycle(ctx)
	if len(sink.messages()) != 0 {
		t.Errorf("got notifications despite unresolvable channel: %v", sink.messages())
	}
	if st.Live("g1", "ninja") {
		t.Error("live flag mutated for a skipped guild")
	}

	// Channel comes back: the rising edge is still pending and fires now.
	sink.resolveErr = nil
	engine.RunCycle(ctx)
	if len(sink.messages()) != 1 {
		t.Errorf("got %d notifications after channel recovered, want 1", len(sink.messages()))
	}
}

func TestTrackerFailureIsolated(t *testing.T) {
	client := &scriptedClient{
		scripts: map[string][]bool{"healthy": {true}},
		errs:    map[string]error{"broken": errors.New("token fetch exhausted")},
	}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "broken", "")
	st.PutTracker(ctx, "g1", "healthy", "")

	engine.RunCycle(ctx)
	msgs := sink.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "healthy") {
		t.Errorf("failure of one tracker leaked into the rest of the cycle: %v", msgs)
	}
	if st.Live("g1", "broken") {
		t.Error("live flag mutated for a tracker whose check errored")
	}
}

func TestSendFailureStillUpdatesState(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{"ninja": {true, true}}}
	sink := &recordingSink{sendErr: errors.New("delivery refused")}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "")

	engine.RunCycle(ctx)
	if !st.Live("g1", "ninja") {
		t.Error("live flag not updated after failed delivery (best-effort semantics)")
	}
	// Best-effort: the failed notification is not re-sent while level stays live.
	sink.sendErr = nil
	engine.RunCycle(ctx)
	if len(sink.messages()) != 0 {
		t.Errorf("live level retriggered a notification: %v", sink.messages())
	}
}

// fixedClient always returns the same records.
type fixedClient struct{ streams []twitchapi.Stream }

func (c *fixedClient) GetStreams(context.Context, string) ([]twitchapi.Stream, error) {
	return c.streams, nil
}

func TestUnknownViewerCountRendersUnknown(t *testing.T) {
	client := &fixedClient{streams: []twitchapi.Stream{{UserLogin: "ninja", Title: "t", ViewerCount: -1}}}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	st.SelectChannel(ctx, "g1", "chan-1")
	st.PutTracker(ctx, "g1", "ninja", "Viewers: {viewers}")

	engine.RunCycle(ctx)
	msgs := sink.messages()
	if len(msgs) != 1 || msgs[0] != "chan-1|Viewers: unknown" {
		t.Errorf("notification = %v, want viewers rendered as unknown", msgs)
	}
}

func TestGuildsWithoutChannelAreSkipped(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{"ninja": {true}}}
	sink := &recordingSink{}
	engine, st := newTestEngine(client, sink)
	ctx := context.Background()

	// Tracker without a selected channel can only happen via state edited on
	// disk; the engine must tolerate it.
	st.PutTracker(ctx, "g1", "ninja", "")
	engine.RunCycle(ctx)
	if len(sink.messages()) != 0 {
		t.Errorf("got notifications for a guild without a channel: %v", sink.messages())
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	client := &scriptedClient{scripts: map[string][]bool{}}
	engine, _ := newTestEngine(client, &recordingSink{})
	engine.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
	at, _ := engine.LastCycle()
	if at.IsZero() {
		t.Error("no cycle ran before cancellation")
	}
}
