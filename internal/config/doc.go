// Package config defines the application configuration structure and loads
// it from environment variables and an optional config file, with defaults
// and struct-tag validation.
package config
