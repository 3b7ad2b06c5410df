package twitchapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// defaultHTTPClient bounds every token and Helix call. A hung connection must
// never stall a poll cycle indefinitely.
var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

// Stream is a single live stream record from the Helix streams endpoint.
// The presence of a record means the streamer is live.
type Stream struct {
	UserLogin string `json:"user_login"`
	Title     string `json:"title"`
	// ViewerCount is -1 when Twitch omits the field, so callers can render
	// "unknown" instead of a phantom zero.
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

func (s *Stream) UnmarshalJSON(b []byte) error {
	type alias Stream
	aux := struct {
		*alias
		ViewerCount *int `json:"viewer_count"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	s.ViewerCount = -1
	if aux.ViewerCount != nil {
		s.ViewerCount = *aux.ViewerCount
	}
	return nil
}

// DisplayTitle returns the stream title, substituting a placeholder when Twitch
// reports none.
func (s Stream) DisplayTitle() string {
	if s.Title == "" {
		return "no title"
	}
	return s.Title
}

// HelixClient provides the minimal Helix surface needed for live status polling.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client

	// RetryDelay is the wait before the single retry after a network-level
	// failure. Defaults to 1s; tests override it.
	RetryDelay time.Duration
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return defaultHTTPClient
}

// GetStreams queries live status for a login. It returns zero or one records;
// nil means offline or indeterminate. Only token acquisition failures surface
// as errors: any other API failure is logged and absorbed into "no data",
// since absence is the common case and must not look like a fault.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return nil, err
	}
	retryDelay := hc.RetryDelay
	if retryDelay == 0 {
		retryDelay = time.Second
	}
	const maxAttempts = 2
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitch.tv/helix/streams", nil)
		if err != nil {
			return nil, err
		}
		q := req.URL.Query()
		q.Set("user_login", login)
		req.URL.RawQuery = q.Encode()
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)

		resp, err := hc.http().Do(req)
		if err != nil {
			slog.Warn("twitch streams request failed", slog.String("login", login), slog.Int("attempt", attempt), slog.Any("err", err))
			if attempt == maxAttempts {
				return nil, nil
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		streams, refresh, done := hc.handleResponse(resp, login, attempt)
		if refresh {
			// Token rejected despite appearing valid: re-authenticate once.
			tok, err = hc.AppTokenSource.ForceRefresh(ctx)
			if err != nil {
				return nil, err
			}
			continue
		}
		if done {
			return streams, nil
		}
	}
	return nil, nil
}

// handleResponse consumes resp and reports either the decoded records (done),
// or that the caller should refresh the token and retry.
func (hc *HelixClient) handleResponse(resp *http.Response, login string, attempt int) (streams []Stream, refresh, done bool) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized && attempt == 1 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, false
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		slog.Error("twitch streams error", slog.String("login", login), slog.String("status", resp.Status), slog.String("body", string(b)))
		return nil, false, true
	}
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		slog.Error("twitch streams decode error", slog.String("login", login), slog.Any("err", err))
		return nil, false, true
	}
	return body.Data, false, true
}
