package capture

import (
	"fmt"

	"github.com/oszuidwest/zwfm-voicebox/internal/format"
)

// Capture parameters for local input.
const (
	SampleRate = 48000
	Channels   = 1
	Bitrate    = "128k"
)

// output describes how FFmpeg produces one encoding.
type output struct {
	Muxer   string   // FFmpeg muxer name (-f)
	Encoder string   // FFmpeg audio encoder (-c:a)
	Lossy   bool     // Whether a bitrate applies
	Extra   []string // Muxer options
}

// outputs maps the negotiable encodings to FFmpeg settings.
var outputs = map[format.Encoding]output{
	format.WebMOpus: {Muxer: "webm", Encoder: "libopus", Lossy: true},
	format.WebM:     {Muxer: "webm", Encoder: "libopus", Lossy: true},
	format.OggOpus:  {Muxer: "ogg", Encoder: "libopus", Lossy: true},
	format.Ogg:      {Muxer: "ogg", Encoder: "libopus", Lossy: true},
	// Fragmented MP4 can be written to a pipe.
	format.MP4AAC: {Muxer: "mp4", Encoder: "aac", Lossy: true, Extra: []string{"-movflags", "frag_keyframe+empty_moov"}},
	format.MP4:    {Muxer: "mp4", Encoder: "aac", Lossy: true, Extra: []string{"-movflags", "frag_keyframe+empty_moov"}},
	format.MPEG:   {Muxer: "mp3", Encoder: "libmp3lame", Lossy: true},
	format.WAV:    {Muxer: "wav", Encoder: "pcm_s16le"},
	format.AAC:    {Muxer: "adts", Encoder: "aac", Lossy: true},
}

// outputFor returns the FFmpeg settings for enc.
func outputFor(enc format.Encoding) (output, bool) {
	out, ok := outputs[enc]
	return out, ok
}

// BuildArgs returns the FFmpeg arguments that capture from device and write enc to stdout.
func BuildArgs(enc format.Encoding, device string) ([]string, error) {
	out, ok := outputFor(enc)
	if !ok {
		return nil, fmt.Errorf("unsupported capture encoding %q", enc)
	}
	cfg := getPlatformConfig()

	args := []string{
		"-f", cfg.InputFormat,
		"-i", device,
	}
	if !cfg.StopViaStdin {
		args = append(args, "-nostdin")
	}
	args = append(args,
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-ac", fmt.Sprintf("%d", Channels),
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-c:a", out.Encoder,
	)
	if out.Lossy {
		args = append(args, "-b:a", Bitrate)
	}
	args = append(args, out.Extra...)
	args = append(args, "-f", out.Muxer, "pipe:1")
	return args, nil
}
