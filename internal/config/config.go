// Package config manages application configuration from config.yaml,
// BRIDGE_* environment variables, and built-in defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true
	DefaultListen   = ":3000"
	DefaultDBPath   = "linebridge.db"
	DefaultDispatch = "* * * * *"
	DefaultReminder = "*/5 * * * *"
)

// Task names used as keys in the scheduler configuration.
const (
	TaskMessageDispatch  = "message_dispatch"
	TaskCalendarReminder = "calendar_reminder"
)

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the inbound webhook HTTP server.
type ServerConfig struct {
	Listen string `mapstructure:"listen" validate:"required"`
}

// DatabaseConfig controls the SQLite record store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LineConfig holds LINE platform settings that live in the config file rather
// than the settings table. The channel secret authenticates inbound webhooks;
// when empty, only signature header presence is enforced.
type LineConfig struct {
	ChannelSecret string `mapstructure:"channel_secret"`
}

// TaskConfig describes one scheduled task's cron expression and whether it runs.
type TaskConfig struct {
	Schedule string `mapstructure:"schedule"`
	Enabled  bool   `mapstructure:"enabled"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// Config is the root application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Line      LineConfig      `mapstructure:"line"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// Load reads configuration in precedence order: defaults, then config.yaml
// (optional), then BRIDGE_* environment variables. The result is validated
// before being returned.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; defaults plus env cover everything.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", DefaultLogJSON)

	v.SetDefault("server.listen", DefaultListen)

	v.SetDefault("database.path", DefaultDBPath)

	// Viper only decodes keys it already knows about, so the secret needs an
	// explicit empty default for the env override to land.
	v.SetDefault("line.channel_secret", "")

	v.SetDefault("scheduler.tasks."+TaskMessageDispatch+".schedule", DefaultDispatch)
	v.SetDefault("scheduler.tasks."+TaskMessageDispatch+".enabled", true)
	v.SetDefault("scheduler.tasks."+TaskCalendarReminder+".schedule", DefaultReminder)
	v.SetDefault("scheduler.tasks."+TaskCalendarReminder+".enabled", true)
}
