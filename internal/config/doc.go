// Package config loads, normalizes, and validates the TOML configuration
// shared by the triage CLI and daemon.
package config
