//go:build !windows

package util

import (
	"io"
	"os"
	"syscall"
)

// ShutdownSignals returns the signals to listen for graceful shutdown.
func ShutdownSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM}
}

// GracefulSignal asks a process to finish its output and exit.
func GracefulSignal(p *os.Process) error {
	return p.Signal(syscall.SIGINT)
}

// StopFFmpegViaStdin closes stdin. FFmpeg is signalled instead on Unix.
func StopFFmpegViaStdin(stdin io.WriteCloser) error {
	if stdin == nil {
		return nil
	}
	return stdin.Close()
}
