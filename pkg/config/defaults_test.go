package config

import (
	"testing"
	"time"

	"github.com/fleetyard/eldcore/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_API(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("Expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default read timeout 10s, got %v", cfg.API.ReadTimeout)
	}
	if cfg.API.WriteTimeout != 10*time.Second {
		t.Errorf("Expected default write timeout 10s, got %v", cfg.API.WriteTimeout)
	}
	if cfg.API.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle timeout 60s, got %v", cfg.API.IdleTimeout)
	}
	if cfg.API.MaxBodySize != 2*bytesize.MiB {
		t.Errorf("Expected default max body size 2Mi, got %v", cfg.API.MaxBodySize)
	}
}

func TestApplyDefaults_Idempotency(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Idempotency.Backend != "memory" {
		t.Errorf("Expected default backend 'memory', got %q", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.InFlightTTL != 15*time.Minute {
		t.Errorf("Expected default in-flight TTL 15m, got %v", cfg.Idempotency.InFlightTTL)
	}
	if cfg.Idempotency.CompletedTTL != 24*time.Hour {
		t.Errorf("Expected default completed TTL 24h, got %v", cfg.Idempotency.CompletedTTL)
	}
}

func TestApplyDefaults_IdempotencyRedisAddr(t *testing.T) {
	cfg := &Config{Idempotency: IdempotencyConfig{Backend: "redis"}}
	ApplyDefaults(cfg)

	if cfg.Idempotency.Redis.Addr != "localhost:6379" {
		t.Errorf("Expected default redis addr 'localhost:6379', got %q", cfg.Idempotency.Redis.Addr)
	}
}

func TestApplyDefaults_Ingest(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Ingest.Retry.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts 3, got %d", cfg.Ingest.Retry.MaxAttempts)
	}
	if cfg.Ingest.Retry.BaseDelay != 1*time.Second {
		t.Errorf("Expected default base delay 1s, got %v", cfg.Ingest.Retry.BaseDelay)
	}
	if cfg.Ingest.Retry.MaxDelay != 30*time.Second {
		t.Errorf("Expected default max delay 30s, got %v", cfg.Ingest.Retry.MaxDelay)
	}
	if cfg.Ingest.DLQAlertThreshold != 100 {
		t.Errorf("Expected default DLQ alert threshold 100, got %d", cfg.Ingest.DLQAlertThreshold)
	}
	if cfg.Ingest.SweepInterval != 5*time.Minute {
		t.Errorf("Expected default sweep interval 5m, got %v", cfg.Ingest.SweepInterval)
	}
}

func TestApplyDefaults_Metrics(t *testing.T) {
	// Disabled metrics get no port
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 0 {
		t.Errorf("Expected no metrics port while disabled, got %d", cfg.Metrics.Port)
	}

	// Enabled metrics default to 9090
	cfg = &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg)
	if cfg.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Metrics.Port)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "json",
		},
		ShutdownTimeout: 5 * time.Second,
		Idempotency: IdempotencyConfig{
			Backend:      "badger",
			Path:         "/tmp/replay",
			CompletedTTL: 48 * time.Hour,
		},
	}
	ApplyDefaults(cfg)

	// Level is normalized to uppercase but not replaced
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown timeout 5s to be preserved, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Idempotency.Backend != "badger" {
		t.Errorf("Expected backend 'badger' to be preserved, got %q", cfg.Idempotency.Backend)
	}
	if cfg.Idempotency.CompletedTTL != 48*time.Hour {
		t.Errorf("Expected completed TTL 48h to be preserved, got %v", cfg.Idempotency.CompletedTTL)
	}
}
