package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// IRCSink announces into Twitch chat channels over IRC. The selected channel
// value is the chat channel name. Requires a user (bot) OAuth token; the app
// access token used for Helix cannot speak in chat.
type IRCSink struct {
	client *twitch.Client

	mu     sync.Mutex
	joined map[string]bool
}

func NewIRCSink(username, oauthToken string) *IRCSink {
	return &IRCSink{
		client: twitch.NewClient(username, oauthToken),
		joined: map[string]bool{},
	}
}

// Start connects the IRC client and disconnects it on context cancellation.
// Connect blocks, so it runs in its own goroutine.
func (s *IRCSink) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		if err := s.client.Disconnect(); err != nil {
			slog.Warn("twitch irc disconnect error", slog.Any("err", err))
		}
	}()
	go func() {
		if err := s.client.Connect(); err != nil && ctx.Err() == nil {
			slog.Error("twitch irc connect error", slog.Any("err", err))
		}
	}()
}

func (s *IRCSink) Resolve(_ context.Context, channel string) error {
	channel = strings.ToLower(strings.TrimPrefix(channel, "#"))
	if channel == "" {
		return errors.New("empty irc channel")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined[channel] {
		s.client.Join(channel)
		s.joined[channel] = true
	}
	return nil
}

func (s *IRCSink) Send(_ context.Context, channel, text string) error {
	channel = strings.ToLower(strings.TrimPrefix(channel, "#"))
	// IRC messages are single-line; collapse the multi-line template.
	s.client.Say(channel, strings.ReplaceAll(text, "\n", " | "))
	return nil
}
