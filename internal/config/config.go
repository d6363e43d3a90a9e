package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Device contains the acquisition hardware connection settings.
type Device struct {
	Host           string `toml:"host"`
	ControlPort    int    `toml:"control_port"`
	DataPort       int    `toml:"data_port"`
	ConnectTimeout int    `toml:"connect_timeout"`
	CommandTimeout int    `toml:"command_timeout"`
	Interface      string `toml:"interface"`
}

// Capture holds the initial values of the capture attributes.
type Capture struct {
	FileName    string  `toml:"file_name"`
	NumCapture  int     `toml:"num_capture"`
	FlushPeriod float64 `toml:"flush_period"`
	Scaled      bool    `toml:"scaled"`
	Prefix      string  `toml:"prefix"`
	HistoryDays int     `toml:"history_days"`
}

// Tables configures the table catalog and change polling.
type Tables struct {
	CatalogPath  string `toml:"catalog_path"`
	PollInterval int    `toml:"poll_interval"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool `toml:"enabled"`
}

// Notifications configures ntfy delivery of capture session results.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnlyErrors     bool   `toml:"only_errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format          string            `toml:"format"`
	Level           string            `toml:"level"`
	RetentionDays   int               `toml:"retention_days"`
	ComponentLevels map[string]string `toml:"component_levels"`
}

// Config encapsulates all configuration values for daqbridge.
//
// Configuration sections by subsystem:
//   - Paths: state, log and capture directories plus the API bind address
//   - Device: control and data ports of the acquisition hardware
//   - Capture: initial capture attribute values and session history
//   - Tables: table catalog and change polling
//   - Metrics: Prometheus endpoint
//   - Notifications: ntfy messages when capture sessions finish
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Device        Device        `toml:"device"`
	Capture       Capture       `toml:"capture"`
	Tables        Tables        `toml:"tables"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// RequestTimeoutDuration converts the ntfy request timeout to a duration.
func (n Notifications) RequestTimeoutDuration() time.Duration {
	return time.Duration(n.RequestTimeout) * time.Second
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded. The string result is the resolved path
// and the bool reports whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		data, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation. The
// capture directory is created on a best-effort basis so the daemon can run
// while external storage is unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.CaptureDir) != "" {
		_ = os.MkdirAll(c.Paths.CaptureDir, 0o755)
	}
	return nil
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "daqbridged.lock")
}

// SocketPath is the IPC socket the CLI dials.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "daqbridge.sock")
}

// SessionsPath is the capture session history database.
func (c *Config) SessionsPath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// ControlAddress is host:port of the device control channel.
func (d Device) ControlAddress() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.ControlPort))
}

// DataAddress is host:port of the device data channel.
func (d Device) DataAddress() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.DataPort))
}

// ConnectTimeoutDuration converts connect_timeout to a duration.
func (d Device) ConnectTimeoutDuration() time.Duration {
	return time.Duration(d.ConnectTimeout) * time.Second
}

// CommandTimeoutDuration converts command_timeout to a duration.
func (d Device) CommandTimeoutDuration() time.Duration {
	return time.Duration(d.CommandTimeout) * time.Second
}

// FlushPeriodDuration converts flush_period to a duration.
func (c Capture) FlushPeriodDuration() time.Duration {
	return time.Duration(c.FlushPeriod * float64(time.Second))
}

// PollIntervalDuration converts poll_interval to a duration.
func (t Tables) PollIntervalDuration() time.Duration {
	return time.Duration(t.PollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
