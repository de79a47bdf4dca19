package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = DefaultMetricsPort
	}
	if cfg.QueryPort == 0 {
		cfg.QueryPort = DefaultQueryPort
	}
	if cfg.StatsLogInterval == 0 {
		cfg.StatsLogInterval = DefaultStatsLogInterval
	}
	if cfg.Pool.Capacity == 0 {
		cfg.Pool.Capacity = DefaultPoolCapacity
	}
	if cfg.Pool.AcquireTimeout == 0 {
		cfg.Pool.AcquireTimeout = DefaultAcquireTimeout
	}
	if cfg.Batch.SizeThreshold == 0 {
		cfg.Batch.SizeThreshold = DefaultSizeThreshold
	}
	if cfg.Batch.FlushInterval == 0 {
		cfg.Batch.FlushInterval = DefaultFlushInterval
	}
	if cfg.Batch.WaitTimeout == 0 {
		cfg.Batch.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.Backend.RequestTimeout == 0 {
		cfg.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Cache != nil {
		if cfg.Cache.Backend == "" {
			cfg.Cache.Backend = DefaultCacheBackend
		}
	}
	if cfg.RateLimit != nil && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = DefaultRateLimitBurst
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("metricsPort must be between 1 and 65535")
	}
	if cfg.QueryPort < 1 || cfg.QueryPort > 65535 {
		return fmt.Errorf("queryPort must be between 1 and 65535")
	}
	if cfg.StatsLogInterval < 0 {
		return fmt.Errorf("statsLogInterval must be non-negative")
	}

	if cfg.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be positive")
	}
	if cfg.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquireTimeout must be positive")
	}

	if cfg.Batch.SizeThreshold <= 0 {
		return fmt.Errorf("batch.sizeThreshold must be positive")
	}
	if cfg.Batch.FlushInterval <= 0 {
		return fmt.Errorf("batch.flushInterval must be positive")
	}
	if cfg.Batch.WaitTimeout <= 0 {
		return fmt.Errorf("batch.waitTimeout must be positive")
	}

	if cfg.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	if cfg.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.requestTimeout must be positive")
	}

	if cfg.Cache != nil && cfg.Cache.Enabled {
		if cfg.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive when cache is enabled")
		}
		switch cfg.Cache.Backend {
		case "memory":
			if cfg.Cache.Size <= 0 {
				return fmt.Errorf("cache.size must be positive for the memory backend")
			}
		case "redis":
			if cfg.Cache.RedisAddr == "" {
				return fmt.Errorf("cache.redisAddr is required for the redis backend")
			}
		default:
			return fmt.Errorf("cache.backend must be 'memory' or 'redis'")
		}
	}

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		if cfg.RateLimit.RPS <= 0 {
			return fmt.Errorf("rateLimit.rps must be positive when rate limiting is enabled")
		}
		if cfg.RateLimit.Burst <= 0 {
			return fmt.Errorf("rateLimit.burst must be positive when rate limiting is enabled")
		}
	}

	return nil
}
