package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

const (
	// stopTimeout is how long FFmpeg gets to flush its output after a stop request.
	stopTimeout = 10 * time.Second

	// chunkSize is the read size for encoded output; each read becomes one fragment.
	chunkSize = 16 * 1024
)

// FFmpeg captures from a local input device and encodes with FFmpeg.
type FFmpeg struct {
	// Path is the FFmpeg binary.
	Path string
	// Device is the input device identifier. Empty selects the platform default.
	Device string
	// OnExit is called when FFmpeg exits without a stop request.
	OnExit func(err error)
}

// Capture implements session.Capturer.
func (f *FFmpeg) Capture(ctx context.Context, enc format.Encoding, sink func([]byte)) (session.Capture, error) {
	if f.Path == "" {
		return nil, ErrNoFFmpeg
	}

	device, err := resolveDevice(f.Device, f.Path)
	if err != nil {
		return nil, err
	}
	args, err := BuildArgs(enc, device)
	if err != nil {
		return nil, err
	}

	// The process outlives the request that started it.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cmd := exec.CommandContext(procCtx, f.Path, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	p := &process{
		cmd:    cmd,
		cancel: cancel,
		stdin:  stdinPipe,
		done:   make(chan struct{}),
		onExit: f.OnExit,
	}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		if closeErr := stdinPipe.Close(); closeErr != nil {
			slog.Warn("failed to close stdin pipe", "error", closeErr)
		}
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	slog.Info("capture started", "device", device, "mime_type", enc, "pid", cmd.Process.Pid)
	go p.run(stdoutPipe, sink)
	return p, nil
}

// process is a running FFmpeg capture.
type process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stderr bytes.Buffer // Read only after done is closed
	done   chan struct{}
	onExit func(err error)

	mu       sync.Mutex
	stopping bool
	err      error
	stopOnce sync.Once
}

// run forwards encoded output to sink until FFmpeg closes stdout, then reaps the process.
func (p *process) run(stdout io.Reader, sink func([]byte)) {
	buf := make([]byte, chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			sink(bytes.Clone(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("capture output closed", "error", err)
			}
			break
		}
	}

	waitErr := p.cmd.Wait()

	p.mu.Lock()
	stopping := p.stopping
	if waitErr != nil && !stopping {
		if msg := util.LastErrorLine(p.stderr.String()); msg != "" {
			waitErr = fmt.Errorf("%w: %s", waitErr, msg)
		}
		p.err = waitErr
	}
	p.mu.Unlock()
	close(p.done)

	if !stopping {
		slog.Warn("capture exited unexpectedly", "error", waitErr)
		if p.onExit != nil {
			p.onExit(waitErr)
		}
	}
}

// Stop asks FFmpeg to finish and waits for its remaining output. After
// stopTimeout the process is killed.
func (p *process) Stop() error {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopping = true
		p.mu.Unlock()

		if err := util.StopFFmpegViaStdin(p.stdin); err != nil {
			slog.Debug("failed to close capture stdin", "error", err)
		}
		if err := util.GracefulSignal(p.cmd.Process); err != nil {
			slog.Debug("failed to signal capture", "error", err)
		}

		select {
		case <-p.done:
		case <-time.After(stopTimeout):
			slog.Warn("capture ffmpeg did not stop in time")
			p.cancel()
			<-p.done
		}
		p.cancel()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
