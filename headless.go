package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/capture"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/notify"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
)

// errNoAudio is returned when a headless recording captured nothing.
var errNoAudio = errors.New("no audio captured")

// headlessOptions configures a single local recording.
type headlessOptions struct {
	cfg        *config.Snapshot
	store      storage.Store
	notifier   *notify.UploadNotifier
	eventLog   *eventlog.Logger
	ffmpegPath string
	duration   time.Duration

	// capturer and probe replace the FFmpeg defaults when set.
	capturer session.Capturer
	probe    format.Probe
}

// runHeadless records from the local device until the duration elapses or ctx
// is cancelled, then uploads the recording. It returns the upload error, if any.
func runHeadless(ctx context.Context, opts *headlessOptions) (string, error) {
	exited := make(chan error, 1)
	capturer := opts.capturer
	if capturer == nil {
		capturer = &capture.FFmpeg{
			Path:   opts.ffmpegPath,
			Device: opts.cfg.AudioInput,
			OnExit: func(err error) {
				select {
				case exited <- err:
				default:
				}
			},
		}
	}
	probe := opts.probe
	if probe == nil {
		probe = capture.NewFFmpegProbe(opts.ffmpegPath)
	}

	stopped := make(chan struct{}, 1)
	sessOpts := session.Options{
		Capturer:    capturer,
		Store:       opts.store,
		Probe:       probe,
		Folder:      opts.cfg.Folder,
		MaxDuration: opts.duration,
		MaxSize:     opts.cfg.MaxSizeBytes(),
		EventLog:    opts.eventLog,
		OnChange: func(st session.Status) {
			if st.State == session.StateStopped {
				wake(stopped)
			}
		},
	}
	if opts.notifier != nil {
		sessOpts.OnUploaded = opts.notifier.UploadCompleted
		sessOpts.OnUploadFailed = opts.notifier.UploadFailed
	}
	sess := session.New(sessOpts)
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		return "", err
	}
	slog.Info("recording from local device", "duration", opts.duration, "device", opts.cfg.AudioInput)

	select {
	case <-stopped:
	case <-ctx.Done():
		slog.Info("recording interrupted")
	case err := <-exited:
		slog.Warn("capture ended early", "error", err)
	}

	if err := sess.Stop(); err != nil {
		if !errors.Is(err, session.ErrInvalidTransition) {
			return "", err
		}
		// A limit-triggered stop is still collecting trailing fragments.
		if sess.State() == session.StateRecording {
			<-stopped
		}
	}

	// The upload is not tied to ctx so an interrupted recording is still kept.
	key, err := sess.Upload(context.Background())
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", errNoAudio
	}
	slog.Info("recording uploaded", "key", key)
	return key, nil
}
