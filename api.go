package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/capture"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/server"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
	"github.com/oszuidwest/zwfm-voicebox/internal/types"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
	"github.com/oszuidwest/zwfm-voicebox/internal/waveform"
)

const (
	// peaksTimeout bounds fetching and decoding one recording.
	peaksTimeout = 60 * time.Second

	// maxNegotiateBody bounds a capability report.
	maxNegotiateBody = 64 << 10

	// defaultEventsLimit is the page size of /api/events.
	defaultEventsLimit = 50
)

// API response helpers

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// parseJSON reads and parses JSON from request body.
// Returns parsed value and true on success, zero value and false on failure.
func parseJSON[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := s.readJSON(r, &v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return v, false
	}
	return v, true
}

// storageStatus maps storage errors to HTTP status codes.
func storageStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

// queryFolder returns the folder query parameter or the configured folder.
func (s *Server) queryFolder(r *http.Request) (string, bool) {
	folder := cmp.Or(r.URL.Query().Get("folder"), s.config.Snapshot().Folder)
	return folder, config.IsValidFolder(folder)
}

// handleAPIRecordings lists stored recordings.
// GET /api/recordings?folder=
func (s *Server) handleAPIRecordings(w http.ResponseWriter, r *http.Request) {
	folder, ok := s.queryFolder(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "folder must be a single folder name")
		return
	}

	objects, err := s.commands.ListRecordings(folder)
	if err != nil {
		s.writeError(w, storageStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, types.WSRecordingsResponse{
		Type:       "recordings",
		Folder:     folder,
		Recordings: objects,
	})
}

// handleAPIPeaks returns the waveform envelope of a stored recording.
// GET /api/recordings/peaks?name=&buckets=&folder=
func (s *Server) handleAPIPeaks(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if err := util.ValidateObjectName(name); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	folder, ok := s.queryFolder(r)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "folder must be a single folder name")
		return
	}
	buckets, err := queryInt(r, "buckets", waveform.DefaultBuckets)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.ffmpegPath == "" {
		s.writeError(w, http.StatusServiceUnavailable, waveform.ErrNoFFmpeg.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), peaksTimeout)
	defer cancel()

	key := storage.Key(folder, name)
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		s.writeError(w, storageStatus(err), err.Error())
		return
	}
	defer util.SafeCloseFunc(rc, "recording "+key)()

	peaks, err := waveform.Peaks(ctx, s.ffmpegPath, rc, buckets)
	if err != nil {
		slog.Error("failed to compute peaks", "key", key, "error", err)
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, types.PeaksResponse{
		Name:    name,
		Buckets: len(peaks),
		Peaks:   peaks,
	})
}

// handleAPINegotiate selects an encoding for a capability report without a session.
// POST /api/negotiate
func (s *Server) handleAPINegotiate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxNegotiateBody)
	req, ok := parseJSON[server.CapabilitiesReportRequest](s, w, r)
	if !ok {
		return
	}
	if verr := server.ValidateStruct(&req); verr != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": verr})
		return
	}
	s.writeJSON(w, http.StatusOK, req.Diagnose())
}

// DiagnosticsResponse describes server-side capture support.
type DiagnosticsResponse struct {
	FFmpegAvailable bool             `json:"ffmpeg_available"`
	FFmpegPath      string           `json:"ffmpeg_path,omitempty"`
	Platform        string           `json:"platform"`
	Devices         []capture.Device `json:"devices"`
	Report          format.Report    `json:"report"`
}

// handleAPIDiagnostics reports which formats the server can record with FFmpeg.
// GET /api/diagnostics
func (s *Server) handleAPIDiagnostics(w http.ResponseWriter, r *http.Request) {
	var probe format.Probe
	if s.probe.Available() {
		probe = s.probe
	}
	devices := []capture.Device{}
	if s.ffmpegPath != "" {
		devices = append(devices, capture.Devices(s.ffmpegPath)...)
	}

	s.writeJSON(w, http.StatusOK, DiagnosticsResponse{
		FFmpegAvailable: s.ffmpegPath != "",
		FFmpegPath:      s.ffmpegPath,
		Platform:        runtime.GOOS,
		Devices:         devices,
		Report:          format.Diagnose(probe, nil),
	})
}

// handleAPIEvents returns recent session and upload events, newest first.
// GET /api/events?limit=&offset=&type=
func (s *Server) handleAPIEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultEventsLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := eventlog.TypeFilter(r.URL.Query().Get("type"))
	if !filter.IsValid() {
		s.writeError(w, http.StatusBadRequest, "type must be one of: session upload")
		return
	}

	events := []eventlog.Event{}
	hasMore := false
	if path := s.eventLog.Path(); path != "" {
		events, hasMore, err = eventlog.ReadLast(path, limit, offset, filter)
		if err != nil {
			slog.Error("failed to read event log", "path", path, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read event log")
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"events":   events,
		"has_more": hasMore,
	})
}
