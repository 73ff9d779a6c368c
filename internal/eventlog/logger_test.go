package eventlog

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "logs", "voicebox.jsonl"))
	if err != nil {
		t.Fatalf("NewLogger() = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestReadLastNewestFirstWithFilter(t *testing.T) {
	l := newTestLogger(t)

	types := []EventType{SessionStarted, SessionStopped, UploadCompleted, SessionStarted, SessionStopped, UploadFailed}
	for i, et := range types {
		if err := l.LogSession(et, "s1", "", &SessionDetails{Fragments: i + 1}); err != nil {
			t.Fatal(err)
		}
	}

	all, more, err := ReadLast(l.Path(), 10, 0, FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != len(types) || more {
		t.Fatalf("got %d events (more=%v), want %d", len(all), more, len(types))
	}
	if all[0].Type != UploadFailed || all[len(all)-1].Type != SessionStarted {
		t.Errorf("unexpected order: first %s last %s", all[0].Type, all[len(all)-1].Type)
	}

	uploads, _, err := ReadLast(l.Path(), 10, 0, FilterUpload)
	if err != nil {
		t.Fatal(err)
	}
	if len(uploads) != 2 || uploads[0].Type != UploadFailed || uploads[1].Type != UploadCompleted {
		t.Errorf("upload filter returned %+v", uploads)
	}

	sessions, _, err := ReadLast(l.Path(), 10, 0, FilterSession)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 4 {
		t.Errorf("session filter returned %d events, want 4", len(sessions))
	}
}

func TestReadLastPagination(t *testing.T) {
	l := newTestLogger(t)
	for range 5 {
		if err := l.LogSession(SessionStarted, "s", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		n, offset int
		wantLen   int
		wantMore  bool
	}{
		{2, 0, 2, true},
		{2, 2, 2, true},
		{2, 4, 1, false},
		{5, 0, 5, false},
		{0, 0, 0, false},
		{2, 10, 0, false},
	}
	for _, tt := range tests {
		events, more, err := ReadLast(l.Path(), tt.n, tt.offset, FilterAll)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != tt.wantLen || more != tt.wantMore {
			t.Errorf("ReadLast(n=%d, offset=%d) = %d events more=%v, want %d more=%v",
				tt.n, tt.offset, len(events), more, tt.wantLen, tt.wantMore)
		}
	}
}

func TestReadLastSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"ts":"2025-01-01T00:00:00Z","type":"session_started"}
not json
{"ts":"2025-01-01T00:00:01Z","type":"upload_completed"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	events, _, err := ReadLast(path, 10, 0, FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestReadLastMissingFile(t *testing.T) {
	events, more, err := ReadLast(filepath.Join(t.TempDir(), "missing.jsonl"), 10, 0, FilterAll)
	if err != nil || more || len(events) != 0 {
		t.Errorf("ReadLast(missing) = %v, %v, %v", events, more, err)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.LogSession(SessionStarted, "s", "", nil); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
}

func TestTypeFilterIsValid(t *testing.T) {
	for _, f := range []TypeFilter{FilterAll, FilterSession, FilterUpload} {
		if !f.IsValid() {
			t.Errorf("%q should be valid", f)
		}
	}
	if TypeFilter("silence").IsValid() {
		t.Error("unknown filter should be invalid")
	}
}
