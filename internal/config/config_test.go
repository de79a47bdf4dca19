package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"backend":{"url":"ws://localhost:9000/live"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LogLevel != DefaultLogLevel {
		t.Errorf("LogLevel = %s, want %s", cfg.LogLevel, DefaultLogLevel)
	}
	if cfg.Pool.Capacity != DefaultPoolCapacity {
		t.Errorf("Pool.Capacity = %d, want %d", cfg.Pool.Capacity, DefaultPoolCapacity)
	}
	if cfg.Batch.SizeThreshold != DefaultSizeThreshold {
		t.Errorf("Batch.SizeThreshold = %d, want %d", cfg.Batch.SizeThreshold, DefaultSizeThreshold)
	}
	if got := cfg.GetFlushIntervalDuration(); got != time.Duration(DefaultFlushInterval)*time.Millisecond {
		t.Errorf("flush interval = %v", got)
	}
	if cfg.IsCacheEnabled() {
		t.Error("cache should be disabled by default")
	}
	if cfg.IsRateLimitEnabled() {
		t.Error("rate limit should be disabled by default")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing backend url", `{}`},
		{"bad log level", `{"logLevel":"verbose","backend":{"url":"ws://x"}}`},
		{"negative capacity", `{"pool":{"capacity":-1},"backend":{"url":"ws://x"}}`},
		{"bad cache backend", `{"cache":{"enabled":true,"ttl":5,"backend":"memcached"},"backend":{"url":"ws://x"}}`},
		{"redis cache without addr", `{"cache":{"enabled":true,"ttl":5,"backend":"redis"},"backend":{"url":"ws://x"}}`},
		{"rate limit without rps", `{"rateLimit":{"enabled":true},"backend":{"url":"ws://x"}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := Load(path); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `{
		"logLevel": "debug",
		"pool": {"capacity": 8, "acquireTimeout": 1500},
		"batch": {"sizeThreshold": 20, "flushInterval": 100, "waitTimeout": 3000},
		"backend": {"url": "ws://live.example:9000/feed", "requestTimeout": 2500},
		"cache": {"enabled": true, "backend": "memory", "ttl": 10, "size": 500},
		"rateLimit": {"enabled": true, "rps": 5}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Pool.Capacity != 8 {
		t.Errorf("Pool.Capacity = %d", cfg.Pool.Capacity)
	}
	if got := cfg.GetAcquireTimeoutDuration(); got != 1500*time.Millisecond {
		t.Errorf("acquire timeout = %v", got)
	}
	if got := cfg.Cache.GetTTLDuration(); got != 10*time.Second {
		t.Errorf("cache ttl = %v", got)
	}
	// burst falls back to the default when omitted
	if cfg.RateLimit.Burst != DefaultRateLimitBurst {
		t.Errorf("RateLimit.Burst = %d, want %d", cfg.RateLimit.Burst, DefaultRateLimitBurst)
	}
}
