package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("APP_PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("BOOTSTRAP_ADMIN_EMAIL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", cfg.App.Addr())
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.Postgres.DSN)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("Brokers = %v, want none", cfg.Kafka.Brokers)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_CACHE_TTL_SECONDS", "60")
	t.Setenv("POSTGRES_MAX_CONNS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.App.Port)
	}
	if cfg.App.RequestTimeout() != 5*time.Second {
		t.Errorf("RequestTimeout() = %v, want 5s", cfg.App.RequestTimeout())
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Redis.Enabled || cfg.Redis.CacheTTL() != time.Minute {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Postgres.MaxConns != 10 {
		t.Errorf("MaxConns = %d, want fallback 10", cfg.Postgres.MaxConns)
	}
}

func TestLoadRejectsInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric REDIS_DB")
	}
}

func TestValidateBootstrapAdmin(t *testing.T) {
	cfg := &Config{Auth: AuthConfig{JWTSecret: "s"}, Bootstrap: BootstrapConfig{AdminEmail: "admin@example.com"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when admin password missing")
	}
	cfg.Bootstrap.AdminPassword = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
