package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// setupLog configures the global logger. With debug enabled, logs go to a
// file under the user cache directory so they never mix with spoken-text
// output on stdout.
func setupLog() (func() error, error) {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)

	if !viper.GetBool("debug") {
		return func() error { return nil }, nil
	}

	scope := gap.NewScope(gap.User, "hearsay")
	dir, err := scope.CacheDir()
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	path := filepath.Join(dir, "hearsay.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	log.SetTimeFormat(time.Kitchen)
	log.SetReportCaller(true)
	log.Debug("logging to file", "path", path)

	return f.Close, nil
}
