// Package config loads search subsystem configuration from environment
// variables with validated defaults.
package config
