package config

import "time"

// Config represents the main configuration structure
type Config struct {
	LogLevel         string           `json:"logLevel"`
	MetricsPort      int              `json:"metricsPort"`
	QueryPort        int              `json:"queryPort"`
	StatsLogInterval int              `json:"statsLogInterval"` // ms - 0 disables periodic stats logging
	Pool             PoolConfig       `json:"pool"`
	Batch            BatchConfig      `json:"batch"`
	Backend          BackendConfig    `json:"backend"`
	Cache            *CacheConfig     `json:"cache,omitempty"`
	RateLimit        *RateLimitConfig `json:"rateLimit,omitempty"`
}

// PoolConfig bounds concurrent use of the live-data backend
type PoolConfig struct {
	Capacity       int `json:"capacity"`
	AcquireTimeout int `json:"acquireTimeout"` // ms - max wait for a free slot
}

// BatchConfig controls request coalescing
type BatchConfig struct {
	SizeThreshold int `json:"sizeThreshold"` // members per batch before immediate flush
	FlushInterval int `json:"flushInterval"` // ms - max time an open batch waits before flush
	WaitTimeout   int `json:"waitTimeout"`   // ms - max time a caller waits for its own result
}

// BackendConfig describes the live-data source
type BackendConfig struct {
	URL            string `json:"url"`
	RequestTimeout int    `json:"requestTimeout"` // ms - per upstream call
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Enabled       bool   `json:"enabled"`
	Backend       string `json:"backend"` // "memory" or "redis"
	TTL           int    `json:"ttl"`     // seconds
	Size          int    `json:"size"`    // number of entries (memory backend)
	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"redisPassword"`
	RedisDB       int    `json:"redisDB"`
}

// RateLimitConfig represents per-role admission rate limiting
type RateLimitConfig struct {
	Enabled bool    `json:"enabled"`
	RPS     float64 `json:"rps"`
	Burst   int     `json:"burst"`
}

// Default values
const (
	DefaultLogLevel         = "info"
	DefaultMetricsPort      = 9090
	DefaultQueryPort        = 8080
	DefaultStatsLogInterval = 60000 // ms
	DefaultPoolCapacity     = 4
	DefaultAcquireTimeout   = 2000 // ms
	DefaultSizeThreshold    = 10
	DefaultFlushInterval    = 50   // ms
	DefaultWaitTimeout      = 5000 // ms
	DefaultRequestTimeout   = 5000 // ms
	DefaultCacheBackend     = "memory"
	DefaultRateLimitBurst   = 10
)

// GetAcquireTimeoutDuration returns the pool acquire timeout as time.Duration
func (c *Config) GetAcquireTimeoutDuration() time.Duration {
	return time.Duration(c.Pool.AcquireTimeout) * time.Millisecond
}

// GetFlushIntervalDuration returns the batch flush interval as time.Duration
func (c *Config) GetFlushIntervalDuration() time.Duration {
	return time.Duration(c.Batch.FlushInterval) * time.Millisecond
}

// GetWaitTimeoutDuration returns the batch wait timeout as time.Duration
func (c *Config) GetWaitTimeoutDuration() time.Duration {
	return time.Duration(c.Batch.WaitTimeout) * time.Millisecond
}

// GetRequestTimeoutDuration returns the backend request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.Backend.RequestTimeout) * time.Millisecond
}

// GetStatsLogIntervalDuration returns the stats log interval as time.Duration
func (c *Config) GetStatsLogIntervalDuration() time.Duration {
	return time.Duration(c.StatsLogInterval) * time.Millisecond
}

// IsCacheEnabled returns true if the result cache is configured and enabled
func (c *Config) IsCacheEnabled() bool {
	return c.Cache != nil && c.Cache.Enabled
}

// IsRateLimitEnabled returns true if per-role rate limiting is enabled
func (c *Config) IsRateLimitEnabled() bool {
	return c.RateLimit != nil && c.RateLimit.Enabled
}

// GetTTLDuration returns the cache TTL as time.Duration
func (c *CacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}
