// Package config resolves process settings once at startup from defaults,
// an optional config file and IMGPROXY_* environment variables.
package config

import "time"

// Config is built once by Load and passed by value; nothing re-reads it per request.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Origin   OriginConfig   `mapstructure:"origin"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Paths    PathsConfig    `mapstructure:"paths"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AdminToken      string        `mapstructure:"admin_token"`
}

// LogConfig holds logging settings. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Pretty     bool   `mapstructure:"pretty"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// RemoteConfig switches the remote tier.
type RemoteConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OriginConfig selects and configures the remote origin driver.
type OriginConfig struct {
	Driver         string `mapstructure:"driver"`
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	PathStyle      bool   `mapstructure:"path_style"`
	MaxObjectBytes int64  `mapstructure:"max_object_bytes"`
}

// FallbackConfig switches the local tier.
type FallbackConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Root    string        `mapstructure:"root"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig holds cache settings. An empty RedisURL disables the shared layer.
type CacheConfig struct {
	MaxBytes        int64         `mapstructure:"max_bytes"`
	TTL             time.Duration `mapstructure:"ttl"`
	Shards          int           `mapstructure:"shards"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RedisURL        string        `mapstructure:"redis_url"`
	Namespace       string        `mapstructure:"namespace"`
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
	Window           time.Duration `mapstructure:"window"`
}

// RetryConfig holds remote retry settings.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	Base       time.Duration `mapstructure:"base"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	Jitter     bool          `mapstructure:"jitter"`
}

// MetricsConfig holds the snapshot reporter interval (0 disables it).
type MetricsConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

// PathsConfig holds path validation settings.
type PathsConfig struct {
	MaxLength         int      `mapstructure:"max_length"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}
