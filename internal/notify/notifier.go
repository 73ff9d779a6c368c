// Package notify delivers upload notifications to external endpoints.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
)

// sendTimeout bounds a notification including all retries.
const sendTimeout = 2 * time.Minute

// UploadNotifier sends webhook notifications for finished uploads.
type UploadNotifier struct {
	cfg *config.Config

	// mu protects the cached client
	mu     sync.Mutex
	client *WebhookClient
	wg     sync.WaitGroup
}

// NewUploadNotifier returns an UploadNotifier configured with the given config.
func NewUploadNotifier(cfg *config.Config) *UploadNotifier {
	return &UploadNotifier{cfg: cfg}
}

// getOrCreateClient returns the cached webhook client, creating it if needed.
func (n *UploadNotifier) getOrCreateClient(cfg *config.WebhookConfig) (*WebhookClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil {
		return n.client, nil
	}

	client, err := NewWebhookClient(cfg)
	if err != nil {
		return nil, err
	}
	n.client = client
	return client, nil
}

// UploadCompleted notifies about a successful upload. It does not block.
func (n *UploadNotifier) UploadCompleted(u session.Upload) {
	n.send("Upload webhook", &WebhookPayload{
		Event:      "upload_completed",
		SessionID:  u.SessionID,
		Key:        u.Key,
		MimeType:   u.ContentType,
		SizeBytes:  u.Size,
		DurationMs: u.Duration.Milliseconds(),
	})
}

// UploadFailed notifies about a failed upload. It does not block.
func (n *UploadNotifier) UploadFailed(u session.Upload, err error) {
	n.send("Upload failure webhook", &WebhookPayload{
		Event:      "upload_failed",
		SessionID:  u.SessionID,
		Key:        u.Key,
		MimeType:   u.ContentType,
		SizeBytes:  u.Size,
		DurationMs: u.Duration.Milliseconds(),
		Error:      err.Error(),
	})
}

// SendTest sends a test notification and waits for the result.
func (n *UploadNotifier) SendTest(ctx context.Context) error {
	cfg := n.cfg.Snapshot()
	client, err := NewWebhookClient(&cfg.Webhook)
	if err != nil {
		return err
	}
	return client.Send(ctx, &WebhookPayload{
		Event:   "test",
		Station: cfg.StationName,
		Message: "This is a test notification from " + cfg.StationName,
	})
}

// Wait blocks until pending notifications are delivered or abandoned.
func (n *UploadNotifier) Wait() {
	n.wg.Wait()
}

func (n *UploadNotifier) send(notifyType string, payload *WebhookPayload) {
	cfg := n.cfg.Snapshot()
	if !cfg.HasWebhook() {
		return
	}
	payload.Station = cfg.StationName

	n.wg.Go(func() {
		client, err := n.getOrCreateClient(&cfg.Webhook)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			err = client.Send(ctx, payload)
			cancel()
		}
		if err != nil {
			slog.Error("notification failed", "type", notifyType, "event", payload.Event, "key", payload.Key, "error", err)
			return
		}
		slog.Info("notification sent", "type", notifyType, "event", payload.Event, "key", payload.Key)
	})
}
