// Package main provides a voicebox: a web recorder that lets listeners and
// presenters record a voice message in the browser and stores it in object storage.
//
// Usage:
//
//	voicebox [-config path/to/config.json] [-record 30s]
//
// If -config is not specified, the voicebox looks for config.json in the same
// directory as the binary. With -record it captures from the local audio device
// for the given duration, uploads the result and exits.
package main

import (
	"cmp"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/config"
	"github.com/oszuidwest/zwfm-voicebox/internal/eventlog"
	"github.com/oszuidwest/zwfm-voicebox/internal/notify"
	"github.com/oszuidwest/zwfm-voicebox/internal/storage"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	record := flag.Duration("record", 0, "Record from the local audio device for this duration, upload and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Check FFmpeg availability
	ffmpegPath := util.ResolveFFmpegPath(cfg.FFmpegPath())
	if ffmpegPath == "" {
		slog.Warn("FFmpeg not found - waveforms and local recording are disabled",
			"configured_path", cfg.FFmpegPath())
	} else {
		slog.Info("FFmpeg found", "path", ffmpegPath)
	}

	eventLog, err := eventlog.NewLogger(cmp.Or(snap.EventLogPath, eventlog.DefaultLogPath(snap.WebPort)))
	if err != nil {
		slog.Warn("event log disabled", "error", err)
		eventLog = nil
	}
	defer func() {
		if err := eventLog.Close(); err != nil {
			slog.Warn("failed to close event log", "error", err)
		}
	}()

	store, err := storage.New(&snap)
	if err != nil {
		slog.Error("storage unavailable - uploads will fail", "mode", snap.StorageMode, "error", err)
		store = storage.Unavailable(err)
	} else {
		slog.Info("storage ready", "mode", snap.StorageMode, "folder", snap.Folder)
	}

	notifier := notify.NewUploadNotifier(cfg)
	defer notifier.Wait()

	if *record > 0 {
		ctx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
		_, err := runHeadless(ctx, &headlessOptions{
			cfg:        &snap,
			store:      store,
			notifier:   notifier,
			eventLog:   eventLog,
			ffmpegPath: ffmpegPath,
			duration:   *record,
		})
		stop()
		if err != nil {
			slog.Error("recording failed", "error", err)
			notifier.Wait()
			os.Exit(1)
		}
		return
	}

	srv := NewServer(cfg, store, notifier, eventLog, ffmpegPath)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop version checker goroutine
	srv.version.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
