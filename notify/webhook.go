package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// WebhookSink posts announcements as JSON to a webhook endpoint. The selected
// channel value is the webhook URL itself, which keeps the core platform
// agnostic: any chat platform that accepts incoming webhooks works unchanged.
type WebhookSink struct {
	client *http.Client
}

func NewWebhookSink() *WebhookSink {
	return &WebhookSink{client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookSink) Resolve(_ context.Context, channel string) error {
	u, err := url.Parse(channel)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook url scheme %q", u.Scheme)
	}
	return nil
}

func (w *WebhookSink) Send(ctx context.Context, channel, text string) error {
	raw, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, channel, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook post failed: %s: %s", resp.Status, string(b))
	}
	return nil
}
