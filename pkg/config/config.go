package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flanksource/eden-updater/pkg/platform"
	"github.com/flanksource/eden-updater/pkg/prefs"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFile = "updater.yaml"
	EnvFile    = ".env"
)

// Config holds the updater settings
type Config struct {
	// InstallRoot is the parent of every channel directory
	InstallRoot string `yaml:"install_root"`
	// TmpDir hosts extraction staging directories and disk image mount points
	TmpDir string `yaml:"tmp_dir"`
	// CacheDir keeps downloaded packages so a failed launch can re-open them
	CacheDir    string            `yaml:"cache_dir,omitempty"`
	ProductName string            `yaml:"product_name"`
	Platform    platform.Platform `yaml:"platform,omitempty"`

	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	MountAttempts       int           `yaml:"mount_attempts"`
	MountRetryDelay     time.Duration `yaml:"mount_retry_delay"`
	BundleSearchDepth   int           `yaml:"bundle_search_depth"`
	AllowAndroidNightly bool          `yaml:"allow_android_nightly"`
	ReleaseCacheTTL     time.Duration `yaml:"release_cache_ttl"`

	Preferences Preferences `yaml:"preferences"`
}

type Preferences struct {
	// Backend is one of file, sqlite or memory
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// Load builds the configuration: embedded defaults, then the YAML file, then a .env file
// next to it, then EDEN_* environment variables. A missing file is only an error when path
// was given explicitly.
func Load(path string) (*Config, error) {
	config, err := Default(platform.Current())
	if err != nil {
		return nil, err
	}

	explicit := path != ""
	if !explicit {
		if found, err := FindConfigFile(); err == nil {
			path = found
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case explicit || !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	envFile := EnvFile
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), EnvFile)
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if config.Platform.OS == "" || config.Platform.Arch == "" {
		current := platform.Current()
		config.Platform = platform.Platform{
			OS:   firstNonEmpty(config.Platform.OS, current.OS),
			Arch: firstNonEmpty(config.Platform.Arch, current.Arch),
		}
	}
	config.Platform = config.Platform.Normalize()
	config.expandPaths()
	return config, config.Validate()
}

// ApplyEnv overrides settings from EDEN_* variables
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"EDEN_INSTALL_ROOT":  &c.InstallRoot,
		"EDEN_TMP_DIR":       &c.TmpDir,
		"EDEN_CACHE_DIR":     &c.CacheDir,
		"EDEN_PRODUCT_NAME":  &c.ProductName,
		"EDEN_PREFS_BACKEND": &c.Preferences.Backend,
		"EDEN_PREFS_PATH":    &c.Preferences.Path,
	}
	for key, field := range strs {
		if v := getenv(key); v != "" {
			*field = v
		}
	}

	if v := getenv("EDEN_ALLOW_ANDROID_NIGHTLY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid EDEN_ALLOW_ANDROID_NIGHTLY %q: %w", v, err)
		}
		c.AllowAndroidNightly = b
	}
	if v := getenv("EDEN_PROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid EDEN_PROBE_TIMEOUT %q: %w", v, err)
		}
		c.ProbeTimeout = d
	}
	return nil
}

func (c *Config) expandPaths() {
	for _, p := range []*string{&c.InstallRoot, &c.TmpDir, &c.CacheDir, &c.Preferences.Path} {
		*p = expandPath(*p)
	}
}

func expandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// Validate checks the configuration for common errors
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is nil")
	}
	if c.InstallRoot == "" {
		return fmt.Errorf("install_root is required")
	}
	if c.ProductName == "" {
		return fmt.Errorf("product_name is required")
	}
	if c.MountAttempts < 1 {
		return fmt.Errorf("mount_attempts must be at least 1, got %d", c.MountAttempts)
	}
	if c.BundleSearchDepth < 1 {
		return fmt.Errorf("bundle_search_depth must be at least 1, got %d", c.BundleSearchDepth)
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}
	switch c.Preferences.Backend {
	case prefs.BackendFile, prefs.BackendSQLite, prefs.BackendMemory:
	default:
		return fmt.Errorf("unknown preferences backend %q", c.Preferences.Backend)
	}
	return nil
}

// OpenPreferences opens the configured preference store
func (c *Config) OpenPreferences() (prefs.Store, error) {
	return prefs.Open(c.Preferences.Backend, c.Preferences.Path)
}

// Save writes the configuration to a YAML file
func Save(config *Config, path string) error {
	if path == "" {
		path = ConfigFile
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// FindConfigFile searches for updater.yaml in the current and parent directories
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		configPath := filepath.Join(dir, ConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root directory
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("%s not found in current directory or any parent directory", ConfigFile)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
