package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration with CLI flags > environment > config file >
// defaults precedence. Environment variables use the PIXROUTER_ prefix with
// underscores for dots, e.g. PIXROUTER_DATABASE_URL.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("database.url", defaults.Database.URL)
	v.SetDefault("cache.enabled", defaults.Cache.Enabled)
	v.SetDefault("cache.address", defaults.Cache.Address)
	v.SetDefault("cache.username", "")
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.prefix", defaults.Cache.Prefix)
	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("compiler.trace", defaults.Compiler.Trace)
	v.SetDefault("compiler.capture_ctx_keys", defaults.Compiler.CaptureCtxKeys)
	v.SetDefault("selector.allow_fallback", defaults.Selector.AllowFallback)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetEnvPrefix("PIXROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{URL: v.GetString("database.url")},
		Cache: CacheConfig{
			Enabled:  v.GetBool("cache.enabled"),
			Address:  v.GetString("cache.address"),
			Username: v.GetString("cache.username"),
			Password: v.GetString("cache.password"),
			DB:       v.GetInt("cache.db"),
			Prefix:   v.GetString("cache.prefix"),
			TTL:      v.GetDuration("cache.ttl"),
		},
		Compiler: CompilerConfig{
			Trace:          v.GetBool("compiler.trace"),
			CaptureCtxKeys: v.GetBool("compiler.capture_ctx_keys"),
		},
		Selector: SelectorConfig{AllowFallback: v.GetBool("selector.allow_fallback")},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
