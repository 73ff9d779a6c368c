package util

import "os/exec"

// ResolveFFmpegPath returns the path to the FFmpeg binary.
// A configured path must resolve to an executable; otherwise "ffmpeg" is looked
// up in PATH. Returns an empty string when FFmpeg is not available, in which case
// headless capture and waveform peaks are disabled.
func ResolveFFmpegPath(customPath string) string {
	name := "ffmpeg"
	if customPath != "" {
		name = customPath
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return ""
	}
	return path
}
