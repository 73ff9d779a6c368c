package session

import (
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

// Status is a point-in-time view of a session for the UI.
type Status struct {
	SessionID string          `json:"session_id"`
	State     State           `json:"state"`
	Encoding  format.Encoding `json:"mime_type,omitempty"`
	Extension string          `json:"extension,omitempty"`
	Duration  string          `json:"duration"`
	Size      int64           `json:"size"`
	Fragments int             `json:"fragments"`
	LastKey   string          `json:"last_key,omitempty"`
	LastError string          `json:"last_error,omitempty"`

	CanStart  bool `json:"can_start"`
	CanStop   bool `json:"can_stop"`
	CanUpload bool `json:"can_upload"`
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionID: s.id,
		State:     s.state,
		LastKey:   s.lastKey,
		LastError: s.lastError,
		CanStart:  s.state == StateIdle || s.state == StateStopped,
		CanStop:   s.state == StateRecording && !s.stopping,
		CanUpload: s.state == StateStopped && !s.audio.Empty(),
	}

	var elapsed time.Duration
	switch {
	case s.state == StateRecording:
		elapsed = time.Since(s.startedAt)
		st.Size = s.size
		st.Fragments = len(s.fragments)
	case s.audio != nil:
		elapsed = s.audio.Duration
		st.Size = int64(len(s.audio.Data))
	}
	if s.state != StateIdle {
		st.Encoding = s.selection.Encoding
		st.Extension = s.selection.Extension
	}
	st.Duration = util.FormatDuration(elapsed)

	return st
}
