// Package config loads, normalizes, and validates daqbridge configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as DAQBRIDGE_API_TOKEN
// and DAQBRIDGE_DEVICE_HOST. Watch reloads the file when it changes so the
// daemon can apply a new log level without restarting.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config
