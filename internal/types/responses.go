package types

import (
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
)

// WSCommandResult is the standard response for command execution.
type WSCommandResult struct {
	Type    string           `json:"type"`            // "<command>_result"
	Success bool             `json:"success"`         // true if command succeeded
	Error   *ValidationError `json:"error,omitempty"` // Validation errors if failed
	Data    any              `json:"data,omitempty"`  // Optional response data
}

// WSStatusResponse is pushed to clients on every session change and periodically.
type WSStatusResponse struct {
	Type            string         `json:"type"`             // "status"
	FFmpegAvailable bool           `json:"ffmpeg_available"` // Server-side capture is possible
	Station         string         `json:"station"`          // Station name for the page title
	Session         session.Status `json:"session"`          // Recorder state for this connection
	Storage         StorageInfo    `json:"storage"`          // Where uploads go
	Limits          LimitsInfo     `json:"limits"`           // Recording limits
	Version         VersionInfo    `json:"version"`          // Version information
}

// StorageInfo describes the configured storage backend.
type StorageInfo struct {
	Mode   string `json:"mode"`   // "local" or "s3"
	Folder string `json:"folder"` // Folder uploads are stored in
	Ready  bool   `json:"ready"`  // Backend is configured
}

// LimitsInfo contains the recording limits enforced by the server.
type LimitsInfo struct {
	MaxDurationSeconds int64 `json:"max_duration_seconds"`
	MaxSizeBytes       int64 `json:"max_size_bytes"`
}

// WSRecordingsResponse is pushed to clients after an upload completes.
type WSRecordingsResponse struct {
	Type       string           `json:"type"` // "recordings"
	Folder     string           `json:"folder"`
	Recordings []storage.Object `json:"recordings"`
}

// PeaksResponse is returned by the waveform endpoint.
type PeaksResponse struct {
	Name    string    `json:"name"`
	Buckets int       `json:"buckets"`
	Peaks   []float64 `json:"peaks"`
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
