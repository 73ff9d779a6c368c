package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oszuidwest/zwfm-voicebox/internal/capture"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/server"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
)

// testServer returns a server with local storage and an event log in a temp
// dir. FFmpeg is not available and the version checker does not poll.
func testServer(t *testing.T) (*Server, *storage.LocalStore) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.New(filepath.Join(dir, "config.json"))
	store, err := storage.NewLocalStore(filepath.Join(dir, "media"), "")
	if err != nil {
		t.Fatal(err)
	}
	eventLog, err := eventlog.NewLogger(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eventLog.Close() })

	return &Server{
		config:   cfg,
		store:    store,
		eventLog: eventLog,
		commands: server.NewCommandHandler(cfg, store, nil, eventLog),
		version:  newVersionChecker("http://127.0.0.1:0"),
		probe:    capture.NewFFmpegProbe(""),
	}, store
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.SetupRoutes().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAPIRecordings(t *testing.T) {
	s, store := testServer(t)
	if err := store.Upload(context.Background(), "recordings/a.webm", "audio/webm", []byte("abc")); err != nil {
		t.Fatal(err)
	}

	rec := serve(t, s, http.MethodGet, "/api/recordings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[struct {
		Folder     string           `json:"folder"`
		Recordings []storage.Object `json:"recordings"`
	}](t, rec)
	if got.Folder != config.DefaultFolder || len(got.Recordings) != 1 || got.Recordings[0].Name != "a.webm" {
		t.Errorf("response = %+v", got)
	}

	if rec := serve(t, s, http.MethodGet, "/api/recordings?folder=../etc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("escaping folder: status = %d", rec.Code)
	}

	// The recording itself is served from local storage.
	media := serve(t, s, http.MethodGet, got.Recordings[0].URL, "")
	if media.Code != http.StatusOK || media.Body.String() != "abc" {
		t.Errorf("GET %s = %d %q", got.Recordings[0].URL, media.Code, media.Body.String())
	}
}

func TestAPIPeaksWithoutFFmpeg(t *testing.T) {
	s, _ := testServer(t)

	if rec := serve(t, s, http.MethodGet, "/api/recordings/peaks?name=a.webm", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/recordings/peaks?name=../a.webm", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid name: status = %d, want 400", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/recordings/peaks?name=a.webm&buckets=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid buckets: status = %d, want 400", rec.Code)
	}
}

func TestAPINegotiate(t *testing.T) {
	s, _ := testServer(t)

	body := `{"recorder_available":true,"recording":["audio/mp4","audio/webm;codecs=opus"],"playback":{"audio/wav":"probably"}}`
	rec := serve(t, s, http.MethodPost, "/api/negotiate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	report := decode[format.Report](t, rec)
	if report.Selected.Encoding != format.MP4 || report.Selected.Extension != "m4a" {
		t.Errorf("selected = %+v", report.Selected)
	}
	if len(report.Playback) == 0 {
		t.Error("playback diagnostics missing")
	}

	if rec := serve(t, s, http.MethodPost, "/api/negotiate", "{"); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d", rec.Code)
	}
	invalid := serve(t, s, http.MethodPost, "/api/negotiate", `{"playback":{"audio/wav":"definitely"}}`)
	if invalid.Code != http.StatusBadRequest || !strings.Contains(invalid.Body.String(), "playback") {
		t.Errorf("invalid report: %d %s", invalid.Code, invalid.Body.String())
	}
}

func TestAPIDiagnosticsWithoutFFmpeg(t *testing.T) {
	s, _ := testServer(t)

	rec := serve(t, s, http.MethodGet, "/api/diagnostics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode[DiagnosticsResponse](t, rec)
	if got.FFmpegAvailable || len(got.Devices) != 0 {
		t.Errorf("response = %+v", got)
	}
	if got.Report.Selected.Encoding != format.Fallback {
		t.Errorf("selected = %q, want fallback", got.Report.Selected.Encoding)
	}
}

func TestAPIEvents(t *testing.T) {
	s, _ := testServer(t)
	for _, typ := range []eventlog.EventType{eventlog.SessionStarted, eventlog.SessionStopped, eventlog.UploadCompleted} {
		if err := s.eventLog.LogSession(typ, "s1", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	type page struct {
		Events  []eventlog.Event `json:"events"`
		HasMore bool             `json:"has_more"`
	}

	got := decode[page](t, serve(t, s, http.MethodGet, "/api/events?limit=2", ""))
	if len(got.Events) != 2 || !got.HasMore {
		t.Fatalf("page = %+v", got)
	}
	if got.Events[0].Type != eventlog.UploadCompleted {
		t.Errorf("first event = %s, want newest first", got.Events[0].Type)
	}

	uploads := decode[page](t, serve(t, s, http.MethodGet, "/api/events?type=upload", ""))
	if len(uploads.Events) != 1 || uploads.HasMore {
		t.Errorf("upload events = %+v", uploads)
	}

	if rec := serve(t, s, http.MethodGet, "/api/events?type=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid type: status = %d", rec.Code)
	}
	if rec := serve(t, s, http.MethodGet, "/api/events?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid limit: status = %d", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	s, _ := testServer(t)

	index := serve(t, s, http.MethodGet, "/", "")
	if index.Code != http.StatusOK || !strings.Contains(index.Body.String(), config.DefaultStationName) {
		t.Errorf("GET / = %d", index.Code)
	}
	if got := index.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}

	favicon := serve(t, s, http.MethodGet, "/favicon.svg", "")
	if !strings.Contains(favicon.Body.String(), config.DefaultStationColorLight) {
		t.Errorf("favicon does not use the station color")
	}

	js := serve(t, s, http.MethodGet, "/app.js", "")
	if js.Code != http.StatusOK || js.Header().Get("Content-Type") != "application/javascript" {
		t.Errorf("GET /app.js = %d %q", js.Code, js.Header().Get("Content-Type"))
	}

	if rec := serve(t, s, http.MethodGet, "/missing.txt", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET /missing.txt = %d", rec.Code)
	}
}
