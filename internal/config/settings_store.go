package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Settings is the small runtime-adjustable subset persisted as JSON. It is
// re-read whenever the file changes.
type Settings struct {
	Debug bool `json:"debug"`
}

func SettingsPath() (string, error) {
	root, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "boxim-bot", "settings.json"), nil
}

// ResolveSettingsPath prefers the configured path and falls back to
// SettingsPath.
func ResolveSettingsPath(opts Options) (string, error) {
	if path := strings.TrimSpace(opts.SettingsFile); path != "" {
		return filepath.Clean(path), nil
	}
	return SettingsPath()
}

func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func SaveSettings(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func MergeOptionsWithSettings(cli Options, saved Settings) Options {
	if !cli.Debug {
		cli.Debug = saved.Debug
	}
	return cli
}
