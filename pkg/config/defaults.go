package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/eden-updater/pkg/platform"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Default returns the embedded defaults with the install root, temp and preference
// locations of a host platform filled in
func Default(p platform.Platform) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(defaultsYAML, &config); err != nil {
		return nil, fmt.Errorf("failed to parse embedded default config: %w", err)
	}
	config.Platform = p

	home, _ := os.UserHomeDir()
	switch {
	case p.IsWindows():
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		config.InstallRoot = filepath.Join(base, "Eden")
		config.CacheDir = filepath.Join(base, "Eden", "cache")
	case p.IsDarwin():
		config.InstallRoot = filepath.Join(home, "Applications", "Eden")
		config.CacheDir = filepath.Join(home, "Library", "Caches", "eden-updater")
	case p.IsAndroid():
		config.InstallRoot = filepath.Join(home, "files")
		config.CacheDir = filepath.Join(home, "cache")
	default:
		data := os.Getenv("XDG_DATA_HOME")
		if data == "" {
			data = filepath.Join(home, ".local", "share")
		}
		config.InstallRoot = filepath.Join(data, "eden-updater")
		config.CacheDir = filepath.Join(home, ".cache", "eden-updater")
	}
	config.TmpDir = os.TempDir()
	config.Preferences.Path = filepath.Join(config.InstallRoot, "preferences.yaml")
	return &config, nil
}
