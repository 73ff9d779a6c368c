// Package waveform computes peak envelopes of recordings for waveform display.
package waveform

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"

	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

const (
	// DefaultBuckets is the number of peaks returned when none is requested.
	DefaultBuckets = 200
	// MinBuckets and MaxBuckets bound the requested resolution.
	MinBuckets = 16
	MaxBuckets = 2048

	// DecodeSampleRate is the rate recordings are decoded at for peak analysis.
	DecodeSampleRate = 8000

	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0
)

// ErrNoFFmpeg is returned when peaks are requested without an FFmpeg binary.
var ErrNoFFmpeg = errors.New("ffmpeg is not available")

// ClampBuckets applies the default and bounds to a requested bucket count.
func ClampBuckets(n int) int {
	if n <= 0 {
		return DefaultBuckets
	}
	return min(max(n, MinBuckets), MaxBuckets)
}

// PeaksFromPCM splits S16LE mono PCM into buckets and returns the absolute
// peak of each, normalized to [0,1]. A trailing odd byte is ignored.
func PeaksFromPCM(pcm []byte, buckets int) []float64 {
	buckets = ClampBuckets(buckets)
	peaks := make([]float64, buckets)

	samples := len(pcm) / 2
	if samples == 0 {
		return peaks
	}

	for i := range samples {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		b := i * buckets / samples
		if abs := math.Abs(sample) / MaxSampleValue; abs > peaks[b] {
			peaks[b] = abs
		}
	}
	return peaks
}

// Peaks decodes an encoded recording with FFmpeg and returns its peak envelope.
func Peaks(ctx context.Context, ffmpegPath string, r io.Reader, buckets int) ([]float64, error) {
	if ffmpegPath == "" {
		return nil, ErrNoFFmpeg
	}

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", DecodeSampleRate),
		"-f", "s16le",
		"pipe:1",
	)
	cmd.Stdin = r

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := util.LastErrorLine(stderr.String()); msg != "" {
			return nil, fmt.Errorf("decode audio: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("decode audio: %w", err)
	}

	return PeaksFromPCM(stdout.Bytes(), buckets), nil
}
