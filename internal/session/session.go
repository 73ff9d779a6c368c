// Package session implements the recording session state machine: capture,
// stop, preview and upload of a single recording at a time.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/format"
)

// Sentinel errors for session operations.
var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrTooLarge is returned when a fragment would exceed the maximum recording size.
	ErrTooLarge = errors.New("recording exceeds the maximum size")
)

// UploadTimeout bounds a single upload call.
const UploadTimeout = 5 * time.Minute

// State is the lifecycle state of a session.
type State string

// Session states.
const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
	StateUploading State = "uploading"
)

// Capture is an active capture from an input device.
type Capture interface {
	// Stop releases the device. Fragments produced before Stop returns are
	// delivered to the sink.
	Stop() error
}

// Capturer opens captures for a given encoding. Fragments are passed to sink in order.
type Capturer interface {
	Capture(ctx context.Context, enc format.Encoding, sink func([]byte)) (Capture, error)
}

// Uploader persists a finished recording.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
}

// Audio is a finished recording. It is not modified after Stop.
type Audio struct {
	Encoding  format.Encoding
	Extension string
	Data      []byte
	Duration  time.Duration
}

// Empty reports whether the recording holds no data.
func (a *Audio) Empty() bool {
	return a == nil || len(a.Data) == 0
}

// Upload describes a finished upload attempt.
type Upload struct {
	SessionID   string        `json:"session_id"`
	Key         string        `json:"key"`
	ContentType string        `json:"content_type"`
	Size        int64         `json:"size"`
	Duration    time.Duration `json:"duration"`
}

// Options configures a Session.
type Options struct {
	Capturer    Capturer
	Store       Uploader
	Probe       format.Probe  // Capability probe used to negotiate the encoding
	Folder      string        // Storage folder for uploads
	MaxDuration time.Duration // Zero disables the limit
	MaxSize     int64         // Zero disables the limit
	EventLog    *eventlog.Logger

	OnChange       func(Status)        // Called after every state change
	OnUploaded     func(Upload)        // Called after a successful upload
	OnUploadFailed func(Upload, error) // Called after a failed upload
}

// Session owns the capture, fragment buffer and finished audio of one recorder.
// All transitions are serialized.
type Session struct {
	mu   sync.Mutex
	id   string
	opts Options

	state     State
	selection format.Selection
	capture   Capture
	stopping  bool
	gen       uint64
	timer     *time.Timer
	startedAt time.Time

	fragments [][]byte
	size      int64
	audio     *Audio
	lastKey   string
	lastError string
}

// New creates an idle session.
func New(opts Options) *Session {
	return &Session{
		id:    uuid.NewString(),
		opts:  opts,
		state: StateIdle,
	}
}

// ID returns the session identifier used in event logs.
func (s *Session) ID() string {
	return s.id
}

// SetProbe replaces the capability probe used by the next Start.
func (s *Session) SetProbe(p format.Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Probe = p
}

// Start negotiates an encoding and begins capturing. Any previous audio is
// discarded. Device errors leave the state unchanged.
func (s *Session) Start(ctx context.Context) error {
	defer s.changed()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle && s.state != StateStopped {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidTransition, s.state)
	}

	sel := format.Negotiate(s.opts.Probe)
	s.gen++
	gen := s.gen

	capture, err := s.opts.Capturer.Capture(ctx, sel.Encoding, func(p []byte) {
		s.appendFromCapture(gen, p)
	})
	if err != nil {
		s.lastError = err.Error()
		_ = s.opts.EventLog.LogSession(eventlog.SessionError, s.id, "capture failed", &eventlog.SessionDetails{
			Encoding: string(sel.Encoding),
			Error:    err.Error(),
		})
		return fmt.Errorf("start capture: %w", err)
	}

	s.selection = sel
	s.capture = capture
	s.stopping = false
	s.fragments = nil
	s.size = 0
	s.audio = nil
	s.lastError = ""
	s.startedAt = time.Now()
	s.state = StateRecording

	if s.opts.MaxDuration > 0 {
		s.timer = time.AfterFunc(s.opts.MaxDuration, func() {
			if err := s.stop(gen); err == nil {
				slog.Info("recording reached maximum duration", "session", s.id, "max", s.opts.MaxDuration)
			}
		})
	}

	slog.Info("recording started", "session", s.id, "mime_type", sel.Encoding, "extension", sel.Extension)
	_ = s.opts.EventLog.LogSession(eventlog.SessionStarted, s.id, "", &eventlog.SessionDetails{
		Encoding:  string(sel.Encoding),
		Extension: sel.Extension,
	})
	return nil
}

// AppendFragment adds a chunk of encoded audio. Only allowed while recording.
func (s *Session) AppendFragment(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(p)
}

func (s *Session) appendLocked(p []byte) error {
	if s.state != StateRecording {
		return fmt.Errorf("%w: fragment received while %s", ErrInvalidTransition, s.state)
	}
	if len(p) == 0 {
		return nil
	}
	if s.opts.MaxSize > 0 && s.size+int64(len(p)) > s.opts.MaxSize {
		return ErrTooLarge
	}
	s.fragments = append(s.fragments, bytes.Clone(p))
	s.size += int64(len(p))
	return nil
}

// appendFromCapture receives fragments from a device capture. Fragments from an
// earlier capture generation are dropped. Hitting the size limit stops the capture.
func (s *Session) appendFromCapture(gen uint64, p []byte) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	err := s.appendLocked(p)
	s.mu.Unlock()

	if errors.Is(err, ErrTooLarge) {
		slog.Warn("recording reached maximum size", "session", s.id, "max_bytes", s.opts.MaxSize)
		go func() { _ = s.stop(gen) }()
	}
}

// Stop releases the capture and assembles the fragments into the finished
// audio. The session becomes stopped even when no fragments were received.
func (s *Session) Stop() error {
	return s.stop(0)
}

// stop ends the recording. A non-zero gen only stops that capture generation.
func (s *Session) stop(gen uint64) error {
	s.mu.Lock()
	if s.state != StateRecording || s.stopping || (gen != 0 && gen != s.gen) {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot stop while %s", ErrInvalidTransition, state)
	}
	s.stopping = true
	capture := s.capture
	s.capture = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	// The capture may deliver trailing fragments while stopping, so the lock
	// is not held here.
	var stopErr error
	if capture != nil {
		stopErr = capture.Stop()
		if stopErr != nil {
			slog.Warn("capture did not stop cleanly", "session", s.id, "error", stopErr)
		}
	}

	defer s.changed()
	s.mu.Lock()
	defer s.mu.Unlock()

	data := bytes.Join(s.fragments, nil)
	if data == nil {
		data = []byte{}
	}
	s.audio = &Audio{
		Encoding:  s.selection.Encoding,
		Extension: s.selection.Extension,
		Data:      data,
		Duration:  time.Since(s.startedAt),
	}
	fragments := len(s.fragments)
	s.fragments = nil
	s.stopping = false
	s.state = StateStopped

	slog.Info("recording stopped", "session", s.id, "bytes", len(data), "fragments", fragments)
	_ = s.opts.EventLog.LogSession(eventlog.SessionStopped, s.id, "", &eventlog.SessionDetails{
		Encoding:   string(s.audio.Encoding),
		SizeBytes:  int64(len(data)),
		DurationMs: s.audio.Duration.Milliseconds(),
		Fragments:  fragments,
	})
	return nil
}

// Audio returns the finished recording, or nil when there is none.
func (s *Session) Audio() *Audio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// Upload stores the finished recording under <folder>/<uuid>.<ext> and returns
// the key. Without audio it does nothing and returns an empty key. The session
// returns to idle after the attempt, whether it succeeded or not.
func (s *Session) Upload(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch s.state {
	case StateRecording, StateUploading:
		state := s.state
		s.mu.Unlock()
		return "", fmt.Errorf("%w: cannot upload while %s", ErrInvalidTransition, state)
	case StateIdle:
		s.mu.Unlock()
		return "", nil
	}
	if s.audio.Empty() {
		s.mu.Unlock()
		slog.Info("no audio to upload", "session", s.id)
		return "", nil
	}

	audio := s.audio
	upload := Upload{
		SessionID:   s.id,
		Key:         objectKey(s.opts.Folder, audio.Extension),
		ContentType: audio.Encoding.ContentType(),
		Size:        int64(len(audio.Data)),
		Duration:    audio.Duration,
	}
	s.state = StateUploading
	s.mu.Unlock()
	s.changed()

	ctx, cancel := context.WithTimeoutCause(ctx, UploadTimeout, errors.New("upload timeout"))
	defer cancel()

	err := s.opts.Store.Upload(ctx, upload.Key, upload.ContentType, audio.Data)

	s.mu.Lock()
	s.state = StateIdle
	s.audio = nil
	if err == nil {
		s.lastKey = upload.Key
		s.lastError = ""
	} else {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	details := &eventlog.SessionDetails{
		Encoding:   string(audio.Encoding),
		Extension:  audio.Extension,
		Key:        upload.Key,
		SizeBytes:  upload.Size,
		DurationMs: audio.Duration.Milliseconds(),
	}

	if err != nil {
		slog.Error("upload failed", "session", s.id, "key", upload.Key, "error", err)
		details.Error = err.Error()
		_ = s.opts.EventLog.LogSession(eventlog.UploadFailed, s.id, "", details)
		s.changed()
		if s.opts.OnUploadFailed != nil {
			s.opts.OnUploadFailed(upload, err)
		}
		return "", fmt.Errorf("upload %s: %w", upload.Key, err)
	}

	slog.Info("upload completed", "session", s.id, "key", upload.Key, "bytes", upload.Size)
	_ = s.opts.EventLog.LogSession(eventlog.UploadCompleted, s.id, "", details)
	s.changed()
	if s.opts.OnUploaded != nil {
		s.opts.OnUploaded(upload)
	}
	return upload.Key, nil
}

// Close releases an active capture and resets the session.
func (s *Session) Close() {
	s.mu.Lock()
	capture := s.capture
	s.capture = nil
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state == StateRecording {
		s.state = StateIdle
	}
	s.fragments = nil
	s.mu.Unlock()

	if capture != nil {
		if err := capture.Stop(); err != nil {
			slog.Warn("capture did not stop cleanly", "session", s.id, "error", err)
		}
	}
}

// objectKey names a new upload.
func objectKey(folder, ext string) string {
	return path.Join(strings.Trim(folder, "/"), uuid.NewString()+"."+ext)
}

// changed reports the current status to OnChange. Must not be called with s.mu held.
func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange(s.Status())
	}
}
