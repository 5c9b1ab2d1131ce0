package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"boxim-bot/internal/logging"
)

const settingsReloadDebounce = 200 * time.Millisecond

// WatchSettings watches the directory holding path and calls onChange with
// the reloaded settings after each burst of writes. It blocks until ctx is
// done. Editors that replace the file atomically are handled by watching the
// parent directory rather than the file.
func WatchSettings(ctx context.Context, path string, logger *logging.Logger, onChange func(Settings)) error {
	if logger == nil {
		panic("config.WatchSettings: logger must not be nil")
	}
	if onChange == nil {
		panic("config.WatchSettings: onChange must not be nil")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logger.Debug("watching settings file", logging.Field("path", path))

	target := filepath.Clean(path)
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			debounce = time.After(settingsReloadDebounce)
		case <-debounce:
			debounce = nil
			settings, loadErr := LoadSettings(path)
			if loadErr != nil {
				if !errors.Is(loadErr, os.ErrNotExist) {
					logger.Warn("settings reload failed", logging.Field("path", path), logging.Field("error", loadErr))
				}
				continue
			}
			logger.Info("settings reloaded", logging.Field("debug", settings.Debug))
			onChange(settings)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("settings watcher error", logging.Field("error", watchErr))
		}
	}
}
