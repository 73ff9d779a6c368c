package waveform

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

func pcm(samples ...int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestClampBuckets(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultBuckets},
		{-5, DefaultBuckets},
		{1, MinBuckets},
		{300, 300},
		{100000, MaxBuckets},
	}
	for _, tt := range tests {
		if got := ClampBuckets(tt.in); got != tt.want {
			t.Errorf("ClampBuckets(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPeaksFromPCM(t *testing.T) {
	samples := make([]int16, 32)
	samples[0] = 16384   // Bucket 0
	samples[1] = -32768  // Bucket 0, larger magnitude
	samples[10] = 8192   // Bucket 5
	samples[31] = -16384 // Last bucket
	peaks := PeaksFromPCM(pcm(samples...), 16)

	if len(peaks) != 16 {
		t.Fatalf("len = %d, want 16", len(peaks))
	}
	want := map[int]float64{0: 1.0, 5: 0.25, 15: 0.5}
	for i, p := range peaks {
		if math.Abs(p-want[i]) > 1e-9 {
			t.Errorf("peak[%d] = %v, want %v", i, p, want[i])
		}
	}
}

func TestPeaksFromPCMEmpty(t *testing.T) {
	peaks := PeaksFromPCM(nil, 0)
	if len(peaks) != DefaultBuckets {
		t.Fatalf("len = %d, want %d", len(peaks), DefaultBuckets)
	}
	for _, p := range peaks {
		if p != 0 {
			t.Fatal("expected silent peaks for empty input")
		}
	}
}

func TestPeaksFromPCMFewerSamplesThanBuckets(t *testing.T) {
	peaks := PeaksFromPCM(append(pcm(32767, -16384), 0x01), 16)
	if len(peaks) != 16 {
		t.Fatalf("len = %d", len(peaks))
	}
	if peaks[0] == 0 || peaks[8] == 0 {
		t.Errorf("expected samples spread over buckets: %v", peaks)
	}
	for _, p := range peaks {
		if p < 0 || p > 1 {
			t.Errorf("peak %v out of range", p)
		}
	}
}

func TestPeaksWithoutFFmpeg(t *testing.T) {
	_, err := Peaks(context.Background(), "", strings.NewReader(""), 0)
	if !errors.Is(err, ErrNoFFmpeg) {
		t.Errorf("Peaks() = %v, want ErrNoFFmpeg", err)
	}
}
