package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IMGPROXY_REMOTE_ENABLED.
const EnvPrefix = "IMGPROXY"

// Load reads defaults, the optional file at path (YAML, TOML or JSON by
// extension) and environment overrides, then validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.admin_token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.compress", true)

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.timeout", "5s")

	v.SetDefault("origin.driver", "http")
	v.SetDefault("origin.base_url", "")
	v.SetDefault("origin.user_agent", "image-proxy/1.0")
	v.SetDefault("origin.bucket", "")
	v.SetDefault("origin.prefix", "")
	v.SetDefault("origin.region", "us-east-1")
	v.SetDefault("origin.endpoint", "")
	v.SetDefault("origin.access_key", "")
	v.SetDefault("origin.secret_key", "")
	v.SetDefault("origin.use_ssl", true)
	v.SetDefault("origin.path_style", false)
	v.SetDefault("origin.max_object_bytes", 20*1024*1024)

	v.SetDefault("fallback.enabled", true)
	v.SetDefault("fallback.root", "./public/images")
	v.SetDefault("fallback.timeout", "500ms")

	v.SetDefault("cache.max_bytes", 256*1024*1024)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.timeout", "1s")
	v.SetDefault("cache.cleanup_interval", "1m")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.namespace", "img")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.window", "60s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base", "100ms")
	v.SetDefault("retry.max_backoff", "2s")
	v.SetDefault("retry.jitter", true)

	v.SetDefault("metrics.report_interval", "1m")

	v.SetDefault("paths.max_length", 512)
	v.SetDefault("paths.allowed_extensions", []string{"jpg", "jpeg", "png", "webp", "avif", "gif"})
}

func normalize(cfg *Config) {
	cfg.Origin.Driver = strings.ToLower(strings.TrimSpace(cfg.Origin.Driver))
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Origin.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Origin.BaseURL), "/")

	exts := make([]string, 0, len(cfg.Paths.AllowedExtensions))
	for _, ext := range cfg.Paths.AllowedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	cfg.Paths.AllowedExtensions = exts
}

// durationDecodeHook accepts Go duration strings and bare numbers of seconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(time.Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			v = strings.TrimSpace(v)
			if v == "" {
				return time.Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return time.Duration(seconds * float64(time.Second)), nil
			}
			return nil, fmt.Errorf("invalid duration: %q", v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		case time.Duration:
			return v, nil
		default:
			return data, nil
		}
	}
}
