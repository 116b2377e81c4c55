// ABOUTME: Routines configuration management with backend and remote selection.
// ABOUTME: Handles settings, env overrides, and storage/remote factory functions.

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harperreed/routines/internal/charm"
	"github.com/harperreed/routines/internal/remote"
	"github.com/harperreed/routines/internal/storage"
	syncengine "github.com/harperreed/routines/internal/sync"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"

	RemoteNone     = "none"
	RemoteCharm    = "charm"
	RemotePostgres = "postgres"

	DefaultProbeInterval   = 30 * time.Second
	DefaultMediaMaxAgeDays = 7
	DefaultMediaMaxSizeMB  = 100
)

// Config stores routines tool configuration.
type Config struct {
	// Backend selects the local storage backend: "sqlite" (default) or "badger".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for data storage.
	// SQLite puts routines.db here; Badger uses a badger/ subdirectory.
	// Supports ~ expansion for home directory. Defaults to ~/.local/share/routines.
	DataDir string `json:"data_dir,omitempty"`

	// Remote selects where routines sync to: "none" (default), "charm", or "postgres".
	Remote      string `json:"remote,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`

	// ProbeURL is checked with HEAD requests to decide online/offline.
	// When empty, the remote's own ping is used.
	ProbeURL      string `json:"probe_url,omitempty"`
	ProbeInterval string `json:"probe_interval,omitempty"`

	MediaMaxAgeDays int `json:"media_max_age_days,omitempty"`
	MediaMaxSizeMB  int `json:"media_max_size_mb,omitempty"`

	LogLevel string `json:"log_level,omitempty"`
	LogFile  string `json:"log_file,omitempty"`

	DeviceID string `json:"device_id,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetRemote returns the configured remote, defaulting to "none".
func (c *Config) GetRemote() string {
	if c.Remote == "" {
		return RemoteNone
	}
	return c.Remote
}

// GetProbeInterval parses ProbeInterval, falling back to 30s on empty or invalid input.
func (c *Config) GetProbeInterval() time.Duration {
	if c.ProbeInterval == "" {
		return DefaultProbeInterval
	}
	d, err := time.ParseDuration(c.ProbeInterval)
	if err != nil || d <= 0 {
		return DefaultProbeInterval
	}
	return d
}

// GetMediaMaxAgeDays returns the media age limit, defaulting to 7.
func (c *Config) GetMediaMaxAgeDays() int {
	if c.MediaMaxAgeDays <= 0 {
		return DefaultMediaMaxAgeDays
	}
	return c.MediaMaxAgeDays
}

// GetMediaMaxSizeMB returns the media size budget, defaulting to 100.
func (c *Config) GetMediaMaxSizeMB() int {
	if c.MediaMaxSizeMB <= 0 {
		return DefaultMediaMaxSizeMB
	}
	return c.MediaMaxSizeMB
}

// GetLogFile returns the log file path with ~ expanded.
func (c *Config) GetLogFile() string {
	return ExpandPath(c.LogFile)
}

// EnsureDeviceID generates a device id if none is set. It reports whether one was generated.
func (c *Config) EnsureDeviceID() bool {
	if c.DeviceID != "" {
		return false
	}
	c.DeviceID = syncengine.GenerateDeviceID()
	return true
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Repository implementation based on the configured backend.
func (c *Config) OpenStorage() (storage.Repository, error) {
	return OpenBackend(c.GetBackend(), c.GetDataDir())
}

// OpenBackend opens the named local backend rooted at dataDir.
func OpenBackend(backend, dataDir string) (storage.Repository, error) {
	switch backend {
	case BackendSQLite:
		db, err := storage.Open(filepath.Join(dataDir, storage.DBFileName))
		if err != nil {
			return nil, err
		}
		return db, nil
	case BackendBadger:
		store, err := storage.OpenBadger(filepath.Join(dataDir, "badger"))
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown backend: %q", backend)
	}
}

// RemoteHandle is an opened remote source plus its cleanup.
type RemoteHandle struct {
	Source remote.Source
	Close  func() error
}

// OpenRemote opens the configured remote source. It returns nil for "none".
func (c *Config) OpenRemote() (*RemoteHandle, error) {
	switch c.GetRemote() {
	case RemoteNone:
		return nil, nil
	case RemoteCharm:
		src, err := charm.Open()
		if err != nil {
			return nil, err
		}
		return &RemoteHandle{Source: src, Close: src.Close}, nil
	case RemotePostgres:
		src, err := remote.NewPostgres(c.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return &RemoteHandle{Source: src, Close: src.Close}, nil
	default:
		return nil, fmt.Errorf("unknown remote: %q", c.Remote)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "routines", "config.json")
}

// Load reads config from disk and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads config from disk without environment overrides. Use it
// before Save so env values are not persisted.
func LoadFile() (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(GetConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from ROUTINES_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("ROUTINES_REMOTE"); v != "" {
		c.Remote = v
	}
	if v := os.Getenv("ROUTINES_POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("ROUTINES_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
