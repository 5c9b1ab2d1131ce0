package config

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"boxim-bot/internal/logging"
)

func TestSettingsPathAndRoundTrip(t *testing.T) {
	root := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Setenv("AppData", root)
	} else {
		t.Setenv("XDG_CONFIG_HOME", root)
	}
	path, err := SettingsPath()
	if err != nil {
		t.Fatalf("SettingsPath() error = %v", err)
	}
	if want := filepath.Join(root, "boxim-bot", "settings.json"); path != want {
		t.Fatalf("SettingsPath() = %q, want %q", path, want)
	}
	if err := SaveSettings(path, Settings{Debug: true}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if !loaded.Debug {
		t.Fatalf("loaded = %#v, want Debug", loaded)
	}
}

func TestResolveSettingsPathPrefersOption(t *testing.T) {
	path, err := ResolveSettingsPath(Options{SettingsFile: "conf/../conf/bot.json"})
	if err != nil {
		t.Fatalf("ResolveSettingsPath() error = %v", err)
	}
	if want := filepath.Join("conf", "bot.json"); path != want {
		t.Fatalf("ResolveSettingsPath() = %q, want %q", path, want)
	}
}

func TestMergeOptionsWithSettingsKeepsCLIDebug(t *testing.T) {
	if merged := MergeOptionsWithSettings(Options{}, Settings{Debug: true}); !merged.Debug {
		t.Fatalf("saved debug should apply when CLI flag is unset")
	}
	if merged := MergeOptionsWithSettings(Options{Debug: true}, Settings{}); !merged.Debug {
		t.Fatalf("CLI debug should win")
	}
}

func TestWatchSettingsReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	logger := logging.New(false)
	logger.SetTerminalOutputEnabled(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan Settings, 4)
	done := make(chan error, 1)
	go func() {
		done <- WatchSettings(ctx, path, logger, func(s Settings) { changes <- s })
	}()

	deadline := time.After(5 * time.Second)
	for {
		// Rewrite until the watcher is registered and reports the change.
		if err := SaveSettings(path, Settings{Debug: true}); err != nil {
			t.Fatalf("SaveSettings() error = %v", err)
		}
		select {
		case got := <-changes:
			if !got.Debug {
				t.Fatalf("reloaded settings = %#v, want Debug", got)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("WatchSettings() error = %v", err)
			}
			return
		case <-time.After(400 * time.Millisecond):
		case <-deadline:
			t.Fatalf("settings change not observed")
		}
	}
}
