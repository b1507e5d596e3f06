// Package config provides configuration management for pixrouter.
package config

import (
	"fmt"
	"time"
)

// Config is the full pixrouter configuration.
type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Compiler CompilerConfig
	Selector SelectorConfig
	Logging  LoggingConfig
}

// DatabaseConfig locates the rule store.
type DatabaseConfig struct {
	// URL uses sqlite:// (development) or postgres:// (production) schemes.
	URL string
}

// CacheConfig enables the Valkey repository cache.
type CacheConfig struct {
	Enabled  bool
	Address  string
	Username string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// CompilerConfig controls rule-set compilation.
type CompilerConfig struct {
	// Trace wraps every predicate node with debug logging.
	Trace bool
	// CaptureCtxKeys logs context key names (never values) in traces.
	CaptureCtxKeys bool
}

// SelectorConfig controls the selection hot path.
type SelectorConfig struct {
	AllowFallback bool
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "sqlite://pixrouter.db"},
		Cache: CacheConfig{
			Enabled: false,
			Address: "localhost:6379",
			Prefix:  "pixrouter",
			TTL:     300 * time.Second,
		},
		Compiler: CompilerConfig{},
		Selector: SelectorConfig{AllowFallback: true},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Cache.Enabled && cfg.Cache.Address == "" {
		return fmt.Errorf("cache.address is required when cache is enabled")
	}
	if cfg.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", cfg.Cache.TTL)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}
	return nil
}
