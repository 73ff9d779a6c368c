package capture

import (
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/oszuidwest/zwfm-voicebox/internal/format"
)

// FFmpegProbe reports which encodings the local FFmpeg build can produce.
// The muxer and encoder lists are read once, on first use.
type FFmpegProbe struct {
	path string

	once     sync.Once
	muxers   map[string]bool
	encoders map[string]bool
}

// NewFFmpegProbe creates a probe for the FFmpeg binary at path. An empty path
// yields a probe that supports nothing.
func NewFFmpegProbe(path string) *FFmpegProbe {
	return &FFmpegProbe{path: path}
}

// Available reports whether an FFmpeg binary is configured.
func (p *FFmpegProbe) Available() bool {
	return p.path != ""
}

// Supports implements format.Probe. Identifiers are matched exactly.
func (p *FFmpegProbe) Supports(enc format.Encoding) bool {
	p.once.Do(p.load)
	out, ok := outputFor(enc)
	return ok && p.muxers[out.Muxer] && p.encoders[out.Encoder]
}

func (p *FFmpegProbe) load() {
	p.muxers = map[string]bool{}
	p.encoders = map[string]bool{}
	if p.path == "" {
		return
	}

	if out, err := exec.Command(p.path, "-hide_banner", "-muxers").Output(); err == nil {
		p.muxers = parseMuxers(string(out))
	} else {
		slog.Warn("failed to list ffmpeg muxers", "error", err)
	}
	if out, err := exec.Command(p.path, "-hide_banner", "-encoders").Output(); err == nil {
		p.encoders = parseEncoders(string(out))
	} else {
		slog.Warn("failed to list ffmpeg encoders", "error", err)
	}
	slog.Debug("ffmpeg capabilities loaded", "muxers", len(p.muxers), "encoders", len(p.encoders))
}

// parseMuxers reads `ffmpeg -muxers` output. Entries follow a line of dashes
// and start with a flags column that contains E for muxing.
func parseMuxers(output string) map[string]bool {
	muxers := map[string]bool{}
	for _, fields := range tableRows(output) {
		if len(fields) < 2 || !strings.Contains(fields[0], "E") {
			continue
		}
		for name := range strings.SplitSeq(fields[1], ",") {
			muxers[name] = true
		}
	}
	return muxers
}

// parseEncoders reads `ffmpeg -encoders` output, keeping audio encoders only.
func parseEncoders(output string) map[string]bool {
	encoders := map[string]bool{}
	for _, fields := range tableRows(output) {
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// tableRows returns the whitespace-split lines after the dashed separator line.
func tableRows(output string) [][]string {
	var rows [][]string
	inTable := false
	for line := range strings.SplitSeq(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if !inTable {
			inTable = trimmed != "" && strings.Trim(trimmed, "-") == ""
			continue
		}
		if fields := strings.Fields(trimmed); len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	return rows
}
