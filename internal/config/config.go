package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/t77yq/power-scheduler/internal/scheduler"
)

// EnvPrefix prefixes environment overrides, e.g. POWERSCHED_SCHEDULE_DRY_RUN
const EnvPrefix = "POWERSCHED"

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the service configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	EC2      EC2Config      `mapstructure:"ec2"`
	Docker   DockerConfig   `mapstructure:"docker"`
	NATS     NATSConfig     `mapstructure:"nats"`
	History  HistoryConfig  `mapstructure:"history"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	LogLevel    string `mapstructure:"log_level"`
	Development bool   `mapstructure:"development"`
}

type ScheduleConfig struct {
	// Tag is the EC2 tag key and container label holding the schedule
	Tag     string        `mapstructure:"tag"`
	Cron    string        `mapstructure:"cron"`
	Workers int           `mapstructure:"workers"`
	DryRun  bool          `mapstructure:"dry_run"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EC2Config struct {
	Enabled         bool     `mapstructure:"enabled"`
	Regions         []string `mapstructure:"regions"`
	AccessKeyID     string   `mapstructure:"access_key_id"`
	SecretAccessKey string   `mapstructure:"secret_access_key"`
	Profile         string   `mapstructure:"profile"`
}

type DockerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Label       string        `mapstructure:"label"`
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	Stream         string        `mapstructure:"stream"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type HistoryConfig struct {
	// Path of the SQLite database, empty disables the history
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
}

type MetricsConfig struct {
	// Bind address of the metrics endpoint, empty disables it
	Bind string `mapstructure:"bind"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "power-scheduler")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.development", false)

	v.SetDefault("schedule.tag", "Schedule")
	v.SetDefault("schedule.cron", scheduler.DefaultCronSpec)
	v.SetDefault("schedule.workers", scheduler.DefaultWorkers)
	v.SetDefault("schedule.dry_run", false)
	v.SetDefault("schedule.timeout", scheduler.DefaultResourceTimeout)

	v.SetDefault("ec2.enabled", true)
	v.SetDefault("ec2.regions", []string{})
	v.SetDefault("ec2.access_key_id", "")
	v.SetDefault("ec2.secret_access_key", "")
	v.SetDefault("ec2.profile", "")

	v.SetDefault("docker.enabled", false)
	v.SetDefault("docker.host", "")
	v.SetDefault("docker.label", "")
	v.SetDefault("docker.stop_timeout", 30*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.stream", "POWER")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("history.path", "data/history.db")
	v.SetDefault("history.retention", 30*24*time.Hour)

	v.SetDefault("retry.max_attempts", scheduler.DefaultMaxAttempts)
	v.SetDefault("retry.initial_delay", scheduler.DefaultInitialDelay)
	v.SetDefault("retry.max_delay", scheduler.DefaultMaxDelay)
	v.SetDefault("retry.multiplier", scheduler.DefaultMultiplier)

	v.SetDefault("metrics.bind", ":9090")
}

// Load reads the configuration file at path, or config/config.yaml when path
// is empty, applies environment overrides and validates the result. A missing
// default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/power-scheduler")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// The container label defaults to the EC2 tag
	if cfg.Docker.Label == "" {
		cfg.Docker.Label = cfg.Schedule.Tag
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.App.LogLevel); err != nil {
		return fmt.Errorf("%w: app.log_level: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.Schedule.Tag) == "" {
		return fmt.Errorf("%w: schedule.tag is required", ErrInvalidConfig)
	}
	if _, err := scheduler.CronParser.Parse(c.Schedule.Cron); err != nil {
		return fmt.Errorf("%w: schedule.cron: %w", ErrInvalidConfig, err)
	}
	if c.Schedule.Workers <= 0 {
		return fmt.Errorf("%w: schedule.workers must be positive", ErrInvalidConfig)
	}
	if c.Schedule.Timeout < 0 {
		return fmt.Errorf("%w: schedule.timeout must not be negative", ErrInvalidConfig)
	}
	if !c.EC2.Enabled && !c.Docker.Enabled {
		return fmt.Errorf("%w: at least one of ec2 and docker must be enabled", ErrInvalidConfig)
	}
	if (c.EC2.AccessKeyID == "") != (c.EC2.SecretAccessKey == "") {
		return fmt.Errorf("%w: ec2.access_key_id and ec2.secret_access_key must be set together", ErrInvalidConfig)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required when nats is enabled", ErrInvalidConfig)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("%w: history.retention must not be negative", ErrInvalidConfig)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: retry.multiplier must be at least 1", ErrInvalidConfig)
	}
	return nil
}
