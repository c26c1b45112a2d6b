package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full monitor configuration, loaded from YAML with
// EYENET_-prefixed environment overrides.
type Config struct {
	Logging   LoggingConfig    `mapstructure:"logging"`
	Store     StoreConfig      `mapstructure:"store"`
	Collector CollectorConfig  `mapstructure:"collector"`
	Alerts    AlertsConfig     `mapstructure:"alerts"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Notify    NotifyConfig     `mapstructure:"notify"`
	Telemetry TelemetryConfig  `mapstructure:"telemetry"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Path    string `mapstructure:"path"`
	Console bool   `mapstructure:"console"`
}

type StoreConfig struct {
	// SeriesCapacity caps each history series before oldest-first
	// eviction kicks in.
	SeriesCapacity int `mapstructure:"series_capacity"`
	// HistoryWindow is how far back in-memory history is kept by the
	// periodic purge.
	HistoryWindow time.Duration `mapstructure:"history_window"`
}

type CollectorConfig struct {
	SystemInterval     time.Duration `mapstructure:"system_interval"`
	AppInterval        time.Duration `mapstructure:"app_interval"`
	AlertCheckInterval time.Duration `mapstructure:"alert_check_interval"`
	PurgeInterval      time.Duration `mapstructure:"purge_interval"`
}

type AlertsConfig struct {
	// ThresholdsPath is the JSON file holding alert threshold limits.
	ThresholdsPath string `mapstructure:"thresholds_path"`
	// NotifyPolicy maps channel name to the minimum alert level that
	// triggers a notification on it.
	NotifyPolicy map[string]string `mapstructure:"notify_policy"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
	// Retention is how long persisted alert and notification history is
	// kept before pruning.
	Retention time.Duration `mapstructure:"retention"`
}

type NotifyConfig struct {
	Email   EmailConfig   `mapstructure:"email"`
	Discord DiscordConfig `mapstructure:"discord"`
	Batch   BatchSettings `mapstructure:"batch"`
}

type EmailConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	APIKey     string   `mapstructure:"api_key"`
	From       string   `mapstructure:"from"`
	FromName   string   `mapstructure:"from_name"`
	Recipients []string `mapstructure:"recipients"`
}

type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

type BatchSettings struct {
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
	MinBatchInterval time.Duration `mapstructure:"min_batch_interval"`
	BatchTimeWindow  time.Duration `mapstructure:"batch_time_window"`
	MaxRetries       int           `mapstructure:"max_retries"`
}

type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ScheduleConfig defines one recurring notification job.
type ScheduleConfig struct {
	ID         string            `mapstructure:"id"`
	Cron       string            `mapstructure:"cron"`
	Channel    string            `mapstructure:"channel"`
	Recipients []string          `mapstructure:"recipients"`
	WebhookURL string            `mapstructure:"webhook_url"`
	Template   string            `mapstructure:"template"`
	Severity   string            `mapstructure:"severity"`
	Conditions []ConditionConfig `mapstructure:"conditions"`
}

type ConditionConfig struct {
	Metric   string  `mapstructure:"metric"`
	Operator string  `mapstructure:"operator"`
	Value    float64 `mapstructure:"value"`
}

// DefaultConfigDir returns ~/.config/eyenet-monitor, creating nothing.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".eyenet-monitor"
	}
	return filepath.Join(home, ".config", "eyenet-monitor")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultConfigDir()

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", filepath.Join(dir, "monitor.log"))
	v.SetDefault("logging.console", false)

	v.SetDefault("store.series_capacity", 10000)
	v.SetDefault("store.history_window", 24*time.Hour)

	v.SetDefault("collector.system_interval", 5*time.Second)
	v.SetDefault("collector.app_interval", 10*time.Second)
	v.SetDefault("collector.alert_check_interval", time.Minute)
	v.SetDefault("collector.purge_interval", time.Hour)

	v.SetDefault("alerts.thresholds_path", filepath.Join(dir, "thresholds.json"))

	v.SetDefault("database.path", filepath.Join(dir, "monitor.db"))
	v.SetDefault("database.retention", 30*24*time.Hour)

	v.SetDefault("notify.batch.max_batch_size", 10)
	v.SetDefault("notify.batch.min_batch_interval", time.Minute)
	v.SetDefault("notify.batch.batch_time_window", 5*time.Minute)
	v.SetDefault("notify.batch.max_retries", 3)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "127.0.0.1:9217")
}

// Load reads configuration from the given file, or from the default
// locations when path is empty. A missing file is not an error; defaults
// and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EYENET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field consistency. Interval and retention values
// must be positive; enabled channels need their credentials.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}

	if c.Store.SeriesCapacity < 1 {
		return fmt.Errorf("store.series_capacity must be positive, got %d", c.Store.SeriesCapacity)
	}
	if c.Store.HistoryWindow <= 0 {
		return fmt.Errorf("store.history_window must be positive, got %s", c.Store.HistoryWindow)
	}

	for name, d := range map[string]time.Duration{
		"collector.system_interval":      c.Collector.SystemInterval,
		"collector.app_interval":         c.Collector.AppInterval,
		"collector.alert_check_interval": c.Collector.AlertCheckInterval,
		"collector.purge_interval":       c.Collector.PurgeInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Notify.Email.Enabled {
		if c.Notify.Email.APIKey == "" {
			return fmt.Errorf("notify.email.api_key is required when email is enabled")
		}
		if c.Notify.Email.From == "" {
			return fmt.Errorf("notify.email.from is required when email is enabled")
		}
		if len(c.Notify.Email.Recipients) == 0 {
			return fmt.Errorf("notify.email.recipients is required when email is enabled")
		}
	}
	if c.Notify.Discord.Enabled && c.Notify.Discord.WebhookURL == "" {
		return fmt.Errorf("notify.discord.webhook_url is required when discord is enabled")
	}

	if c.Database.Retention <= 0 {
		return fmt.Errorf("database.retention must be positive, got %s", c.Database.Retention)
	}

	seen := make(map[string]struct{}, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.ID == "" {
			return fmt.Errorf("schedules[%d]: id is required", i)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("schedules[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Cron == "" {
			return fmt.Errorf("schedule %q: cron expression is required", s.ID)
		}
		switch s.Channel {
		case "email", "discord":
		default:
			return fmt.Errorf("schedule %q: unknown channel %q", s.ID, s.Channel)
		}
	}

	return nil
}
