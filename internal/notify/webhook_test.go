package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
)

func newTestClient(t *testing.T, cfg *config.WebhookConfig) *WebhookClient {
	t.Helper()
	c, err := NewWebhookClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	c.retryWait = time.Millisecond
	return c
}

func TestWebhookSend(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, &config.WebhookConfig{URL: srv.URL})
	err := c.Send(context.Background(), &WebhookPayload{Event: "upload_completed", Key: "recordings/a.webm"})
	if err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if got.Event != "upload_completed" || got.Key != "recordings/a.webm" || got.Timestamp == "" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, &config.WebhookConfig{URL: srv.URL})
	if err := c.Send(context.Background(), &WebhookPayload{Event: "test"}); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhookHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var first, waited atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			first.Store(time.Now().UnixNano())
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		waited.Store(time.Now().UnixNano() - first.Load())
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, &config.WebhookConfig{URL: srv.URL})
	if err := c.Send(context.Background(), &WebhookPayload{Event: "test"}); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if d := time.Duration(waited.Load()); d < 900*time.Millisecond {
		t.Errorf("retried after %v, want about 1s", d)
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, &config.WebhookConfig{URL: srv.URL})
	if err := c.Send(context.Background(), &WebhookPayload{Event: "test"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhookGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, &config.WebhookConfig{URL: srv.URL})
	if err := c.Send(context.Background(), &WebhookPayload{Event: "test"}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls.Load(), maxRetries+1)
	}
}

func TestWebhookOAuth2(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token request: %v", err)
		}
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	var auth atomic.Value
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer hookSrv.Close()

	c := newTestClient(t, &config.WebhookConfig{
		URL:          hookSrv.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "voicebox",
		ClientSecret: "secret",
		Scopes:       []string{"hooks.write"},
	})
	if err := c.Send(context.Background(), &WebhookPayload{Event: "test"}); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if got, _ := auth.Load().(string); got != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", got)
	}
}

func TestNewWebhookClientRequiresURL(t *testing.T) {
	if _, err := NewWebhookClient(&config.WebhookConfig{}); err == nil {
		t.Error("expected error without URL")
	}
}

func TestUploadNotifier(t *testing.T) {
	events := make(chan WebhookPayload, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p WebhookPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		events <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.New(filepath.Join(t.TempDir(), "config.json"))
	cfg.Notifications.Webhook.URL = srv.URL
	n := NewUploadNotifier(cfg)

	upload := session.Upload{SessionID: "s1", Key: "recordings/a.webm", ContentType: "audio/webm", Size: 42, Duration: 1500 * time.Millisecond}
	n.UploadCompleted(upload)
	n.UploadFailed(upload, errors.New("bucket unreachable"))
	n.Wait()

	close(events)
	seen := map[string]WebhookPayload{}
	for p := range events {
		seen[p.Event] = p
	}
	done, ok := seen["upload_completed"]
	if !ok || done.SizeBytes != 42 || done.DurationMs != 1500 || done.Station != config.DefaultStationName {
		t.Errorf("upload_completed payload = %+v", done)
	}
	if failed := seen["upload_failed"]; failed.Error != "bucket unreachable" {
		t.Errorf("upload_failed payload = %+v", failed)
	}
}

func TestUploadNotifierWithoutWebhook(t *testing.T) {
	n := NewUploadNotifier(config.New(filepath.Join(t.TempDir(), "config.json")))
	n.UploadCompleted(session.Upload{Key: "x"})
	n.Wait()
	if n.client != nil {
		t.Error("no client should be created without a webhook URL")
	}
}
