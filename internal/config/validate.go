package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

var (
	validLogFormats = map[string]struct{}{"console": {}, "json": {}}
	validLogLevels  = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	u, err := url.Parse(topic)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic %q must be an http(s) URL", topic)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.APIBind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q must be host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateDevice() error {
	if err := validatePort("device.control_port", c.Device.ControlPort); err != nil {
		return err
	}
	if err := validatePort("device.data_port", c.Device.DataPort); err != nil {
		return err
	}
	if c.Device.ControlPort == c.Device.DataPort {
		return errors.New("device.control_port and device.data_port must differ")
	}
	return nil
}

func validatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.FlushPeriod <= 0 {
		return fmt.Errorf("capture.flush_period must be positive, got %v", c.Capture.FlushPeriod)
	}
	if c.Capture.NumCapture < 0 {
		return fmt.Errorf("capture.num_capture must not be negative, got %d", c.Capture.NumCapture)
	}
	if c.Capture.HistoryDays < 0 {
		return fmt.Errorf("capture.history_days must not be negative, got %d", c.Capture.HistoryDays)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := validLogFormats[c.Logging.Format]; !ok {
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	for component, level := range c.Logging.ComponentLevels {
		if _, ok := validLogLevels[level]; !ok {
			return fmt.Errorf("logging.component_levels.%s has invalid level %q", component, level)
		}
	}
	return nil
}
