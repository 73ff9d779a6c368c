package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
)

// deviceCapture delivers its audio when stopped, like an encoder flushing its output.
type deviceCapture struct {
	audio []byte
	sink  func([]byte)
}

func (c *deviceCapture) Stop() error {
	if len(c.audio) > 0 {
		c.sink(c.audio)
	}
	return nil
}

type device struct {
	mu    sync.Mutex
	audio []byte
	used  []format.Encoding
}

func (d *device) Capture(_ context.Context, enc format.Encoding, sink func([]byte)) (session.Capture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.used = append(d.used, enc)
	return &deviceCapture{audio: d.audio, sink: sink}, nil
}

func headlessTest(t *testing.T, dev *device, duration time.Duration) (*headlessOptions, string) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewLocalStore(root, "")
	if err != nil {
		t.Fatal(err)
	}
	return &headlessOptions{
		cfg:      &config.Snapshot{Folder: "recordings"},
		store:    store,
		duration: duration,
		capturer: dev,
		probe:    format.NewStaticProbe(format.WAV),
	}, root
}

func TestRunHeadlessRecordsForDuration(t *testing.T) {
	dev := &device{audio: []byte("RIFF....WAVE")}
	opts, root := headlessTest(t, dev, 50*time.Millisecond)

	start := time.Now()
	key, err := runHeadless(t.Context(), opts)
	if err != nil {
		t.Fatalf("runHeadless() = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the duration elapsed", elapsed)
	}
	if !strings.HasPrefix(key, "recordings/") || !strings.HasSuffix(key, ".wav") {
		t.Errorf("key = %q, want recordings/<uuid>.wav", key)
	}
	if len(dev.used) != 1 || dev.used[0] != format.WAV {
		t.Errorf("capture encodings = %v", dev.used)
	}

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("uploaded file: %v", err)
	}
	if string(data) != "RIFF....WAVE" {
		t.Errorf("uploaded content = %q", data)
	}
}

func TestRunHeadlessInterruptedStillUploads(t *testing.T) {
	dev := &device{audio: []byte("partial")}
	opts, _ := headlessTest(t, dev, time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(20*time.Millisecond, cancel)

	key, err := runHeadless(ctx, opts)
	if err != nil {
		t.Fatalf("runHeadless() = %v", err)
	}
	if key == "" {
		t.Error("interrupted recording was not uploaded")
	}
}

func TestRunHeadlessNoAudio(t *testing.T) {
	opts, _ := headlessTest(t, &device{}, 10*time.Millisecond)

	if _, err := runHeadless(t.Context(), opts); !errors.Is(err, errNoAudio) {
		t.Errorf("runHeadless() = %v, want errNoAudio", err)
	}
}

func TestRunHeadlessUploadFailure(t *testing.T) {
	opts, _ := headlessTest(t, &device{audio: []byte("x")}, 10*time.Millisecond)
	cause := errors.New("bucket unreachable")
	opts.store = storage.Unavailable(cause)

	_, err := runHeadless(t.Context(), opts)
	if !errors.Is(err, storage.ErrNotConfigured) || !errors.Is(err, cause) {
		t.Errorf("runHeadless() = %v, want the storage error", err)
	}
}
