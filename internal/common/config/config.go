package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrHomeNotFound    = errors.New("cannot determine home directory")
)

// Default values written to a new settings file
const (
	DefaultWorkers     = 4
	DefaultTokenEnv    = "GITHUB_TOKEN"
	DefaultUserAgent   = "lifter"
	DefaultHTTPTimeout = "2m"
	DefaultHTTPRetries = 3
	DefaultItemTimeout = "10m"
)

// Settings represents the application settings. The manifest of tracked
// items is a separate TOML file; Settings only says where it is and how a
// run behaves.
type Settings struct {
	Manifest        string       `yaml:"manifest"`
	OutputDir       string       `yaml:"output_dir"`
	Workers         int          `yaml:"workers"`
	TokenEnv        string       `yaml:"token_env"`
	UserAgent       string       `yaml:"user_agent"`
	ItemTimeout     string       `yaml:"item_timeout"`
	HTTP            HTTPSettings `yaml:"http"`
	Cache           bool         `yaml:"cache"`
	History         bool         `yaml:"history"`
	RepairMissing   bool         `yaml:"repair_missing"`
	StopOnRateLimit bool         `yaml:"stop_on_rate_limit"`
}

// HTTPSettings holds transport settings
type HTTPSettings struct {
	Timeout string `yaml:"timeout"` // Go duration, e.g. "90s"
	Retries int    `yaml:"retries"` // Retries after the first attempt
}

// Default returns the settings used when no file exists yet
func Default() *Settings {
	return &Settings{
		Manifest:    "~/.config/lifter/lifter.toml",
		OutputDir:   "~/.local/bin",
		Workers:     DefaultWorkers,
		TokenEnv:    DefaultTokenEnv,
		UserAgent:   DefaultUserAgent,
		ItemTimeout: DefaultItemTimeout,
		HTTP: HTTPSettings{
			Timeout: DefaultHTTPTimeout,
			Retries: DefaultHTTPRetries,
		},
		Cache:   true,
		History: true,
	}
}

// SettingsPaths returns all possible settings file paths in priority order
// 1. $XDG_CONFIG_HOME/lifter/settings.yaml (XDG standard - priority)
// 2. ~/.lifter/settings.yaml (fallback)
func SettingsPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHomeNotFound, err)
	}

	return []string{
		filepath.Join(xdgDir("XDG_CONFIG_HOME", home, ".config"), "lifter", "settings.yaml"),
		filepath.Join(home, ".lifter", "settings.yaml"),
	}, nil
}

// FindSettingsPath returns the first existing settings file path.
// Returns the default path if no settings file exists yet
func FindSettingsPath() (string, error) {
	paths, err := SettingsPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// Load reads settings from the first available settings file
func Load() (*Settings, error) {
	path, err := FindSettingsPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads settings from a specific file path. A missing file is
// created with default settings. Keys absent from the file keep their
// default values.
func LoadFrom(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s := Default()
			if saveErr := s.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return s, nil
		}
		return nil, err
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSettings, path, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveTo writes settings to a specific file path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges and durations
func (s *Settings) Validate() error {
	var problems []string
	if s.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", s.Workers))
	}
	if s.HTTP.Retries < 0 {
		problems = append(problems, fmt.Sprintf("http.retries must not be negative, got %d", s.HTTP.Retries))
	}
	if _, err := s.HTTPTimeout(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := s.ItemTimeoutDuration(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(problems, "; "))
	}
	return nil
}

// HTTPTimeout returns the per-request timeout; empty means the default
func (s *Settings) HTTPTimeout() (time.Duration, error) {
	return parseDuration("http.timeout", s.HTTP.Timeout, DefaultHTTPTimeout)
}

// ItemTimeoutDuration returns the bound on one item; "0" disables it
func (s *Settings) ItemTimeoutDuration() (time.Duration, error) {
	return parseDuration("item_timeout", s.ItemTimeout, DefaultItemTimeout)
}

func parseDuration(key, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %v", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

// ManifestPath returns the manifest path with ~ expanded
func (s *Settings) ManifestPath() (string, error) {
	return ExpandHome(s.Manifest)
}

// OutputPath returns the install directory with ~ expanded
func (s *Settings) OutputPath() (string, error) {
	return ExpandHome(s.OutputDir)
}

// Token returns the API token from the environment variable named by
// token_env, or an empty string
func (s *Settings) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(s.TokenEnv))
}

// CacheDir returns the response cache directory
func CacheDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHomeNotFound, err)
	}
	return filepath.Join(xdgDir("XDG_CACHE_HOME", home, ".cache"), "lifter"), nil
}

// HistoryPath returns the install ledger database path
func HistoryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHomeNotFound, err)
	}
	return filepath.Join(xdgDir("XDG_STATE_HOME", home, filepath.Join(".local", "state")), "lifter", "history.db"), nil
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHomeNotFound, err)
	}
	return filepath.Join(home, path[1:]), nil
}

func xdgDir(env, home, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	return filepath.Join(home, fallback)
}
