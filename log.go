package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// setupLog sends log output to stderr and appends it to the log file. The
// returned func closes the file.
func setupLog() (func() error, error) {
	level, err := log.ParseLevel(environment.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	log.SetTimeFormat(time.DateTime)

	path := environment.LogFile
	if path == "" {
		path, err = gap.NewScope(gap.User, "ttsproxy").LogPath("ttsproxy.log")
		if err != nil {
			return nil, fmt.Errorf("could not find log directory: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("could not open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return f.Close, nil
}

// defaultLockPath places the daemon lock next to the log file.
func defaultLockPath() string {
	path, err := gap.NewScope(gap.User, "ttsproxy").LogPath("ttsproxy.lock")
	if err != nil {
		return filepath.Join(os.TempDir(), "ttsproxy.lock")
	}
	return path
}

// defaultCacheDir holds synthesized audio for the local output.
func defaultCacheDir() string {
	dir, err := gap.NewScope(gap.User, "ttsproxy").CacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ttsproxy", "audio")
	}
	return filepath.Join(dir, "audio")
}
