package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Signing    SigningConfig    `yaml:"signing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sensor     SensorConfig     `yaml:"sensor"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Redis      RedisConfig      `yaml:"redis"`
	Shift      ShiftConfig      `yaml:"shift"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP front door configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// CacheTTL returns the response cache lifetime.
func (s ServerConfig) CacheTTL() time.Duration {
	return time.Duration(s.CacheTTLSeconds) * time.Second
}

// DatabaseConfig holds the database connection configuration. A DSN starting
// with "postgres://" or "host=" selects Postgres; anything else is treated as
// a SQLite file path or URI.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
}

// SigningConfig holds the keyed-signature settings of the QR front door.
type SigningConfig struct {
	Secret         string `yaml:"secret"`
	BaseURL        string `yaml:"base_url"`
	AllowLocalOnly bool   `yaml:"allow_local_only"`
}

// MetricsConfig holds the stuck-room sweeper settings.
type MetricsConfig struct {
	StuckThresholdSeconds int           `yaml:"stuck_threshold_seconds"`
	SweepIntervalSeconds  int           `yaml:"sweep_interval_seconds"`
	StuckThreshold        time.Duration `yaml:"-"`
	SweepInterval         time.Duration `yaml:"-"`
}

// SensorConfig configures automated (source=sensor) status updates.
type SensorConfig struct {
	Poller PollerConfig `yaml:"poller"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// PollerConfig describes the sensor gateway polled over HTTP.
type PollerConfig struct {
	Enabled         bool              `yaml:"enabled"`
	URL             string            `yaml:"url"`
	Headers         map[string]string `yaml:"headers"`
	PageSize        int               `yaml:"page_size"`
	HTTPProxy       string            `yaml:"http_proxy"`
	IntervalSeconds int               `yaml:"interval_seconds"`
	Interval        time.Duration     `yaml:"-"`
}

// MQTTConfig describes the broker pushing sensor readings.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// RedisConfig configures the status-change stream. Empty Addr disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// ShiftConfig configures per-shift database files.
type ShiftConfig struct {
	BaseDir    string        `yaml:"base_dir"`
	ActiveFile string        `yaml:"active_file"`
	Archive    ArchiveConfig `yaml:"archive"`
}

// ArchiveConfig points at the S3-compatible bucket ended shifts are copied to.
type ArchiveConfig struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	Prefix    string `yaml:"prefix"`
	// Static credentials; empty uses the default AWS credential chain.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// LogConfig selects the zap logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset values. Load calls it; tests building a Config by
// hand may call it too.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8787
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "clinic.db"
	}

	if cfg.Metrics.StuckThresholdSeconds <= 0 {
		cfg.Metrics.StuckThresholdSeconds = 1800
	}
	cfg.Metrics.StuckThreshold = time.Duration(cfg.Metrics.StuckThresholdSeconds) * time.Second
	if cfg.Metrics.SweepIntervalSeconds <= 0 {
		cfg.Metrics.SweepIntervalSeconds = 60
	}
	cfg.Metrics.SweepInterval = time.Duration(cfg.Metrics.SweepIntervalSeconds) * time.Second

	if cfg.Sensor.Poller.IntervalSeconds <= 0 {
		cfg.Sensor.Poller.IntervalSeconds = 30
	}
	cfg.Sensor.Poller.Interval = time.Duration(cfg.Sensor.Poller.IntervalSeconds) * time.Second
	if cfg.Sensor.Poller.PageSize <= 0 {
		cfg.Sensor.Poller.PageSize = 100
	}
	if cfg.Sensor.MQTT.Topic == "" {
		cfg.Sensor.MQTT.Topic = "clinic/rooms/+/status"
	}
	if cfg.Sensor.MQTT.ClientID == "" {
		cfg.Sensor.MQTT.ClientID = "roomd"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "room-status-changes"
	}

	if cfg.Shift.BaseDir == "" {
		cfg.Shift.BaseDir = "data/shifts"
	}
	if cfg.Shift.ActiveFile == "" {
		cfg.Shift.ActiveFile = "data/active_shift.txt"
	}
	if cfg.Shift.Archive.Region == "" {
		cfg.Shift.Archive.Region = "us-east-1"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
