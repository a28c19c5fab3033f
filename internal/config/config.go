// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Retention RetentionConfig `mapstructure:"retention"`
	Store     StoreConfig     `mapstructure:"store"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notifier  NotifierConfig  `mapstructure:"notifier"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// SchedulerConfig governs trigger timing behavior.
type SchedulerConfig struct {
	// FireLead is how far past registration the first fire lands.
	FireLead time.Duration `mapstructure:"fire_lead"`
	// FireTimeout bounds one capture fire end to end.
	FireTimeout time.Duration `mapstructure:"fire_timeout"`
	// HonorCadence parses each job's declared cadence as a cron spec
	// instead of the fixed daily offset.
	HonorCadence bool `mapstructure:"honor_cadence"`
}

// CaptureConfig configures the headless capture engine.
type CaptureConfig struct {
	// Engine selects the capture backend: chromedp or static.
	Engine            string        `mapstructure:"engine"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	ViewportWidth     int           `mapstructure:"viewport_width"`
	ViewportHeight    int           `mapstructure:"viewport_height"`
}

// RetentionConfig caps per-job artifact history.
type RetentionConfig struct {
	// MaxArtifacts per job. Zero means unbounded.
	MaxArtifacts int `mapstructure:"max_artifacts"`
}

// StoreConfig controls job persistence.
type StoreConfig struct {
	// Provider selects the backend: memory or postgres.
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig controls artifact blob persistence.
type StorageConfig struct {
	// Provider selects the backend: memory, local, or gcs.
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// NotifierConfig controls notification delivery.
type NotifierConfig struct {
	// Provider selects the backend: log or pubsub.
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRINSHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("scheduler.fire_lead", "2m")
	v.SetDefault("scheduler.fire_timeout", "5m")
	v.SetDefault("scheduler.honor_cadence", false)
	v.SetDefault("capture.engine", "chromedp")
	v.SetDefault("capture.max_parallel", 2)
	v.SetDefault("capture.user_agent", "scrinshotd/1.0")
	v.SetDefault("capture.navigation_timeout", "45s")
	v.SetDefault("capture.viewport_width", 1280)
	v.SetDefault("capture.viewport_height", 1024)
	v.SetDefault("retention.max_artifacts", 50)
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.base_dir", "data/screenshots")
	v.SetDefault("notifier.provider", "log")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scheduler.FireLead <= 0 {
		return fmt.Errorf("scheduler.fire_lead must be > 0")
	}
	if c.Scheduler.FireTimeout <= 0 {
		return fmt.Errorf("scheduler.fire_timeout must be > 0")
	}
	if c.Retention.MaxArtifacts < 0 {
		return fmt.Errorf("retention.max_artifacts must be >= 0")
	}
	switch c.Capture.Engine {
	case "chromedp", "static":
	default:
		return fmt.Errorf("capture.engine must be chromedp or static, got %q", c.Capture.Engine)
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres provider")
		}
	default:
		return fmt.Errorf("store.provider must be memory or postgres, got %q", c.Store.Provider)
	}
	switch c.Storage.Provider {
	case "memory":
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider must be memory, local, or gcs, got %q", c.Storage.Provider)
	}
	switch c.Notifier.Provider {
	case "log":
	case "pubsub":
		if c.Notifier.ProjectID == "" || c.Notifier.TopicName == "" {
			return fmt.Errorf("notifier.project_id and notifier.topic_name are required for the pubsub provider")
		}
	default:
		return fmt.Errorf("notifier.provider must be log or pubsub, got %q", c.Notifier.Provider)
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required when auth is enabled")
	}
	return nil
}
