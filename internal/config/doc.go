// Package config loads and validates application settings from defaults, an
// optional config.yaml and RELEARN_-prefixed environment variables.
package config
