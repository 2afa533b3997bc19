package config

import (
	"time"

	"github.com/phrazzld/bridgepool/dsn"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Pool     PoolConfig     `mapstructure:"pool"     validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Log      LogConfig      `mapstructure:"log"      validate:"required"`
}

// PoolConfig contains the connection pool sizing and timeout settings.
type PoolConfig struct {
	MinSize int `mapstructure:"min_size" validate:"gte=0,ltefield=MaxSize"`
	MaxSize int `mapstructure:"max_size" validate:"required,gt=0"`

	// AcquireTimeout bounds how long Acquire waits for a free connection.
	// Zero selects the pool's default; a negative value disables the
	// timeout entirely.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// DatabaseConfig contains all database-related configuration settings.
// Either DSN is set directly, or the structured fields are set and the DSN
// is built from them.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=postgres mysql sqlite3"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=0,lt=65536"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// LogConfig contains the logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// ResolveDSN returns the connection string for the configured database,
// building it from the structured fields when DSN is not set directly.
func (c *DatabaseConfig) ResolveDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	params := dsn.Params{
		Host:     c.Host,
		Port:     c.Port,
		Database: c.Database,
		User:     c.User,
		Password: c.Password,
	}
	switch c.Driver {
	case "postgres":
		return dsn.Postgres(params)
	case "mysql":
		return dsn.MySQL(params)
	case "sqlite3":
		return dsn.SQLite(c.Database, nil)
	default:
		return ""
	}
}
