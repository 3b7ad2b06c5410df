package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookSinkSend(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink()
	if err := sink.Send(context.Background(), server.URL, "ninja is live"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received["content"] != "ninja is live" {
		t.Errorf("posted content = %q, want %q", received["content"], "ninja is live")
	}
}

func TestWebhookSinkSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	if err := NewWebhookSink().Send(context.Background(), server.URL, "msg"); err == nil {
		t.Error("Send() with 403 response should return error")
	}
}

func TestWebhookSinkResolve(t *testing.T) {
	sink := NewWebhookSink()
	ctx := context.Background()
	if err := sink.Resolve(ctx, "https://discord.com/api/webhooks/1/abc"); err != nil {
		t.Errorf("Resolve() valid url error = %v", err)
	}
	if err := sink.Resolve(ctx, "not a url at all\x7f"); err == nil {
		t.Error("Resolve() garbage should return error")
	}
	if err := sink.Resolve(ctx, "ftp://example.com/hook"); err == nil {
		t.Error("Resolve() non-http scheme should return error")
	}
}

func TestLogSinkResolve(t *testing.T) {
	if err := (LogSink{}).Resolve(context.Background(), ""); err == nil {
		t.Error("Resolve() empty channel should return error")
	}
	if err := (LogSink{}).Resolve(context.Background(), "chan-1"); err != nil {
		t.Errorf("Resolve() error = %v", err)
	}
}
