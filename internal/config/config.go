// Package config loads the configuration of the lifekit demo.
//
// Precedence, highest first: command-line flags, LIFEKIT_* environment variables,
// the configuration file, defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LIFEKIT_DEMO_TICK_PERIOD=500ms.
const EnvPrefix = "LIFEKIT"

// Config is the demo configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Demo    DemoConfig    `mapstructure:"demo"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// ShutdownTimeout bounds waiting for tick goroutines and the HTTP server on exit.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	// Format is "console" or "json".
	Format string `mapstructure:"format" validate:"required,oneof=console json"`
}

// DemoConfig drives the product page demo.
type DemoConfig struct {
	// TickPeriod is the period of the price ticker.
	TickPeriod time.Duration `mapstructure:"tick_period" validate:"gt=0"`
	// ToggleEvery toggles the price component; 0 disables auto toggling.
	ToggleEvery time.Duration `mapstructure:"toggle_every" validate:"gte=0"`
	// IncreaseEvery increases the price; 0 disables it.
	IncreaseEvery time.Duration `mapstructure:"increase_every" validate:"gte=0"`
	// Duration stops the demo after it elapses; 0 runs until interrupted.
	Duration time.Duration `mapstructure:"duration" validate:"gte=0"`
}

// MetricsConfig configures the ops HTTP listener.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

var defaults = map[string]any{
	"logging.level":       "info",
	"logging.format":      "console",
	"demo.tick_period":    time.Second,
	"demo.toggle_every":   3500 * time.Millisecond,
	"demo.increase_every": 0,
	"demo.duration":       0,
	"metrics.enabled":     false,
	"metrics.addr":        "127.0.0.1:9090",
	"shutdown_timeout":    5 * time.Second,
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "logging.level",
	"log-format":     "logging.format",
	"tick-period":    "demo.tick_period",
	"toggle-every":   "demo.toggle_every",
	"increase-every": "demo.increase_every",
	"duration":       "demo.duration",
	"metrics":        "metrics.enabled",
	"metrics-addr":   "metrics.addr",
}

// Default returns the default configuration.
func Default() *Config {
	cfg, err := Load("", nil)
	if err != nil {
		panic(fmt.Sprintf("config: defaults are invalid: %v", err))
	}
	return cfg
}

// Load reads the configuration. path may be empty (no file); flags may be nil.
// Only flags that were set on the command line override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return errors.New("metrics.addr is required when metrics are enabled")
	}
	return nil
}
