// Package capture provides audio capture backends for recording sessions.
package capture

import (
	"context"
	"errors"

	"github.com/oszuidwest/zwfm-voicebox/internal/format"
	"github.com/oszuidwest/zwfm-voicebox/internal/session"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// ErrNoFFmpeg is returned when local capture is requested without an FFmpeg binary.
var ErrNoFFmpeg = errors.New("ffmpeg is not available")

// Device represents an available audio input device.
type Device struct {
	// ID is the device identifier.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}

// Remote is the capturer for browser recordings. The browser owns the
// microphone and delivers fragments over the connection, so there is
// nothing to open or release here.
type Remote struct{}

// Capture implements session.Capturer.
func (Remote) Capture(_ context.Context, _ format.Encoding, _ func([]byte)) (session.Capture, error) {
	return remoteCapture{}, nil
}

type remoteCapture struct{}

func (remoteCapture) Stop() error { return nil }
