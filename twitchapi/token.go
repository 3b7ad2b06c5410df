// Package twitchapi contains minimal helpers to interact with the Twitch Helix API
// for live stream status queries, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/streamspy/streamspy/telemetry"
)

const (
	// expiryMargin is subtracted from the token lifetime so a token is refreshed
	// shortly before Twitch would reject it.
	expiryMargin = 30 * time.Second

	tokenAttempts = 3
)

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// Transient network failures during acquisition are retried with exponential
// backoff; a rejection by the token endpoint is returned immediately.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	// Backoff returns the wait after a failed attempt (1-based). Defaults to
	// 2^attempt seconds; tests override it to avoid sleeping.
	Backoff func(attempt int) time.Duration

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

func (ts *TokenSource) http() *http.Client {
	if ts.HTTPClient != nil {
		return ts.HTTPClient
	}
	return defaultHTTPClient
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > expiryMargin {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// ForceRefresh discards the cached token and fetches a new one. Used when the
// Helix API rejects a request with 401 despite an apparently valid token.
func (ts *TokenSource) ForceRefresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	ts.token = ""
	ts.expiresAt = time.Time{}
	ts.mu.Unlock()
	return ts.refresh(ctx)
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > expiryMargin {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	backoff := ts.Backoff
	if backoff == nil {
		backoff = func(attempt int) time.Duration { return time.Duration(1<<attempt) * time.Second }
	}
	var lastErr error
	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		tok, expiresIn, retryable, err := ts.fetch(ctx)
		if err == nil {
			ts.token = tok
			ts.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
			if telemetry.TokenRefreshes != nil {
				telemetry.TokenRefreshes.Inc()
			}
			return ts.token, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
		slog.Warn("twitch token fetch failed", slog.Int("attempt", attempt), slog.Int("max_attempts", tokenAttempts), slog.Any("err", err))
		if attempt == tokenAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
	return "", fmt.Errorf("twitch token fetch exhausted %d attempts: %w", tokenAttempts, lastErr)
}

// fetch performs a single client-credentials token request. retryable reports
// whether the failure was network-level (as opposed to an auth rejection).
func (ts *TokenSource) fetch(ctx context.Context) (token string, expiresIn int, retryable bool, err error) {
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://id.twitch.tv/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := ts.http().Do(req)
	if err != nil {
		return "", 0, true, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", 0, false, fmt.Errorf("twitch token request failed: %s: %s", resp.Status, string(b))
	}
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", 0, true, err
	}
	if at.AccessToken == "" {
		return "", 0, false, errors.New("empty access_token in twitch response")
	}
	if at.ExpiresIn <= 0 {
		at.ExpiresIn = 3600
	}
	return at.AccessToken, at.ExpiresIn, false, nil
}
