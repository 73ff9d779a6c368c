package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/capture"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/notify"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
)

// Timeouts for storage and notification commands.
const (
	listTimeout = 30 * time.Second
	testTimeout = 30 * time.Second
)

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UploadResult is the data of a session/upload result. Upload failures are
// not reported as command errors; Uploaded is false and the session status
// carries the last error.
type UploadResult struct {
	Key      string `json:"key,omitempty"`
	Uploaded bool   `json:"uploaded"`
}

// ClientHooks connects a client's session to its connection.
type ClientHooks struct {
	// OnChange is called after every session state change.
	OnChange func()
	// OnUploaded is called after a successful upload.
	OnUploaded func()
}

// Client is the server-side state of one WebSocket connection.
type Client struct {
	Session *session.Session
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg      *config.Config
	store    storage.Store
	notifier *notify.UploadNotifier
	eventLog *eventlog.Logger
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(cfg *config.Config, store storage.Store, notifier *notify.UploadNotifier, eventLog *eventlog.Logger) *CommandHandler {
	return &CommandHandler{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		eventLog: eventLog,
	}
}

// NewClient creates the state for a new connection. The browser records,
// so the session captures remotely and receives fragments from HandleFragment.
func (h *CommandHandler) NewClient(hooks ClientHooks) *Client {
	cfg := h.cfg.Snapshot()
	opts := session.Options{
		Capturer:    capture.Remote{},
		Store:       h.store,
		Folder:      cfg.Folder,
		MaxDuration: time.Duration(cfg.MaxDurationMinutes) * time.Minute,
		MaxSize:     cfg.MaxSizeBytes(),
		EventLog:    h.eventLog,
		OnChange: func(session.Status) {
			if hooks.OnChange != nil {
				hooks.OnChange()
			}
		},
		OnUploaded: func(u session.Upload) {
			if h.notifier != nil {
				h.notifier.UploadCompleted(u)
			}
			if hooks.OnUploaded != nil {
				hooks.OnUploaded()
			}
		},
	}
	if h.notifier != nil {
		opts.OnUploadFailed = h.notifier.UploadFailed
	}
	return &Client{Session: session.New(opts)}
}

// Close releases the client's session.
func (c *Client) Close() {
	c.Session.Close()
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "session/start", "recordings/list")
func (h *CommandHandler) Handle(c *Client, cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	// Parse command into namespace and action
	parts := strings.SplitN(cmd.Type, "/", 3)
	namespace := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}
	subaction := ""
	if len(parts) > 2 {
		subaction = parts[2]
	}

	switch namespace {
	case "capabilities":
		h.handleCapabilities(c, action, cmd, send)
	case "session":
		h.handleSession(c, action, cmd, send)
	case "recordings":
		h.handleRecordings(action, cmd, send)
	case "storage":
		h.handleStorage(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// HandleFragment appends a binary frame to the client's recording. A fragment
// that would exceed the size limit stops the recording instead.
func (h *CommandHandler) HandleFragment(c *Client, p []byte) {
	err := c.Session.AppendFragment(p)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrTooLarge):
		slog.Warn("recording reached maximum size, stopping", "session", c.Session.ID())
		if err := c.Session.Stop(); err != nil {
			slog.Debug("stop after size limit", "session", c.Session.ID(), "error", err)
		}
	default:
		slog.Debug("dropped audio fragment", "session", c.Session.ID(), "bytes", len(p), "error", err)
	}
}

// --- Namespace handlers ---

// handleCapabilities routes capabilities/* commands
func (h *CommandHandler) handleCapabilities(c *Client, action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "report":
		var req CapabilitiesReportRequest
		if !DecodeAndValidate(cmd, send, &req) {
			return
		}
		c.Session.SetProbe(req.RecorderProbe())
		report := req.Diagnose()
		slog.Info("client capabilities received",
			"session", c.Session.ID(),
			"recorder", req.RecorderAvailable,
			"selected", report.Selected.Encoding)
		SendSuccess(send, cmd.Type, report)
	default:
		slog.Warn("unknown capabilities action", "action", action)
	}
}

// handleSession routes session/* commands
func (h *CommandHandler) handleSession(c *Client, action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "start":
		if err := c.Session.Start(context.Background()); err != nil {
			slog.Error("session/start failed", "session", c.Session.ID(), "error", err)
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, c.Session.Status())
	case "stop":
		if err := c.Session.Stop(); err != nil {
			SendError(send, cmd.Type, err)
			return
		}
		SendSuccess(send, cmd.Type, c.Session.Status())
	case "upload":
		HandleActionAsync(cmd, send, func() (any, error) {
			key, err := c.Session.Upload(context.Background())
			if errors.Is(err, session.ErrInvalidTransition) {
				return nil, err
			}
			// Other failures are logged and event-logged by the session.
			return UploadResult{Key: key, Uploaded: err == nil && key != ""}, nil
		})
	case "status":
		SendSuccess(send, cmd.Type, c.Session.Status())
	default:
		slog.Warn("unknown session action", "action", action)
	}
}

// handleRecordings routes recordings/* commands
func (h *CommandHandler) handleRecordings(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "list":
		var req RecordingsListRequest
		if !DecodeAndValidate(cmd, send, &req) {
			return
		}
		folder := cmp.Or(req.Folder, h.cfg.Snapshot().Folder)
		HandleActionAsync(cmd, send, func() (any, error) {
			return h.ListRecordings(folder)
		})
	default:
		slog.Warn("unknown recordings action", "action", action)
	}
}

// handleStorage routes storage/* commands
func (h *CommandHandler) handleStorage(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			if err := h.store.Test(ctx); err != nil {
				slog.Error("storage/test: connection test failed", "error", err)
				return nil, err
			}
			slog.Info("storage/test: connection test succeeded")
			return nil, nil
		})
	default:
		slog.Warn("unknown storage action", "action", action)
	}
}

// handleNotifications routes notifications/*/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch {
	case action == "webhook" && subaction == "test":
		HandleActionAsync(cmd, send, func() (any, error) {
			if h.notifier == nil {
				return nil, errors.New("notifications are disabled")
			}
			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			if err := h.notifier.SendTest(ctx); err != nil {
				slog.Error("test failed", "command", cmd.Type, "error", err)
				return nil, err
			}
			slog.Info("test succeeded", "command", cmd.Type)
			return nil, nil
		})
	default:
		slog.Warn("unknown notifications action", "action", action, "subaction", subaction)
	}
}

// ListRecordings lists the recordings in folder.
func (h *CommandHandler) ListRecordings(folder string) ([]storage.Object, error) {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()
	objects, err := h.store.List(ctx, folder)
	if err != nil {
		slog.Error("failed to list recordings", "folder", folder, "error", err)
		return nil, err
	}
	return objects, nil
}
