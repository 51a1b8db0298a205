package config

import (
	"errors"
	"net/url"
)

var supportedDrivers = map[string]struct{}{
	"http":  {},
	"s3":    {},
	"minio": {},
}

var supportedLevels = map[string]struct{}{
	"debug":   {},
	"info":    {},
	"warn":    {},
	"warning": {},
	"error":   {},
}

// Validate reports every invalid field at once, joined with errors.Join.
func (c Config) Validate() error {
	var errs []error
	add := func(field, reason string) {
		errs = append(errs, newFieldError(field, reason))
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout", "must be positive")
	}
	if _, ok := supportedLevels[c.Log.Level]; !ok {
		add("log.level", "must be one of debug|info|warn|error")
	}

	if c.Remote.Enabled {
		if c.Remote.Timeout <= 0 {
			add("remote.timeout", "must be positive")
		}
		if _, ok := supportedDrivers[c.Origin.Driver]; !ok {
			add("origin.driver", "must be one of http|s3|minio")
		}
		switch c.Origin.Driver {
		case "http":
			if u, err := url.Parse(c.Origin.BaseURL); c.Origin.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				add("origin.base_url", "must be an absolute http(s) URL")
			}
		case "s3", "minio":
			if c.Origin.Bucket == "" {
				add("origin.bucket", "must not be empty")
			}
			if c.Origin.Driver == "minio" && c.Origin.Endpoint == "" {
				add("origin.endpoint", "must not be empty")
			}
		}
		if c.Origin.MaxObjectBytes <= 0 {
			add("origin.max_object_bytes", "must be positive")
		}
	}

	if c.Fallback.Enabled {
		if c.Fallback.Root == "" {
			add("fallback.root", "must not be empty")
		}
		if c.Fallback.Timeout <= 0 {
			add("fallback.timeout", "must be positive")
		}
	}

	if c.Cache.MaxBytes <= 0 {
		add("cache.max_bytes", "must be positive")
	}
	if c.Cache.TTL <= 0 {
		add("cache.ttl", "must be positive")
	}
	if c.Cache.Shards <= 0 {
		add("cache.shards", "must be positive")
	}
	if c.Cache.Timeout <= 0 {
		add("cache.timeout", "must be positive")
	}
	if c.Cache.CleanupInterval < 0 {
		add("cache.cleanup_interval", "must not be negative")
	}

	if c.Breaker.FailureThreshold <= 0 {
		add("breaker.failure_threshold", "must be positive")
	}
	if c.Breaker.Cooldown <= 0 {
		add("breaker.cooldown", "must be positive")
	}
	if c.Breaker.Window < 0 {
		add("breaker.window", "must not be negative")
	}

	if c.Retry.MaxRetries < 0 {
		add("retry.max_retries", "must not be negative")
	}
	if c.Retry.Base <= 0 {
		add("retry.base", "must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.Base {
		add("retry.max_backoff", "must not be below retry.base")
	}

	if c.Metrics.ReportInterval < 0 {
		add("metrics.report_interval", "must not be negative")
	}
	if c.Paths.MaxLength <= 0 {
		add("paths.max_length", "must be positive")
	}
	if len(c.Paths.AllowedExtensions) == 0 {
		add("paths.allowed_extensions", "must not be empty")
	}

	return errors.Join(errs...)
}
