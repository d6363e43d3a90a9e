package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDevice()
	c.normalizeCapture()
	if err := c.normalizeTables(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if value := strings.TrimSpace(os.Getenv("DAQBRIDGE_NTFY_TOPIC")); value != "" {
		c.Notifications.NtfyTopic = value
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.CaptureDir, err = expandPath(strings.TrimSpace(c.Paths.CaptureDir)); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DAQBRIDGE_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDevice() {
	c.Device.Host = strings.TrimSpace(c.Device.Host)
	if value, ok := os.LookupEnv("DAQBRIDGE_DEVICE_HOST"); ok && strings.TrimSpace(value) != "" {
		if c.Device.Host == "" || c.Device.Host == defaultDeviceHost {
			c.Device.Host = strings.TrimSpace(value)
		}
	}
	if c.Device.Host == "" {
		c.Device.Host = defaultDeviceHost
	}
	if c.Device.ConnectTimeout <= 0 {
		c.Device.ConnectTimeout = defaultConnect
	}
	if c.Device.CommandTimeout <= 0 {
		c.Device.CommandTimeout = defaultCommand
	}
	c.Device.Interface = strings.TrimSpace(c.Device.Interface)
}

func (c *Config) normalizeCapture() {
	c.Capture.FileName = strings.TrimSpace(c.Capture.FileName)
	c.Capture.Prefix = strings.Trim(strings.TrimSpace(c.Capture.Prefix), ":")
	if c.Capture.Prefix == "" {
		c.Capture.Prefix = defaultPrefix
	}
}

func (c *Config) normalizeTables() error {
	var err error
	if strings.TrimSpace(c.Tables.CatalogPath) == "" {
		c.Tables.CatalogPath = defaultCatalogPath
	}
	if c.Tables.CatalogPath, err = expandPath(c.Tables.CatalogPath); err != nil {
		return fmt.Errorf("tables.catalog_path: %w", err)
	}
	if c.Tables.PollInterval <= 0 {
		c.Tables.PollInterval = defaultPollInterval
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if len(c.Logging.ComponentLevels) > 0 {
		levels := make(map[string]string, len(c.Logging.ComponentLevels))
		for component, level := range c.Logging.ComponentLevels {
			levels[strings.ToLower(strings.TrimSpace(component))] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.ComponentLevels = levels
	}
}
