package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StoreBackend != "postgres" {
		t.Errorf("Expected STORE_BACKEND default 'postgres', got '%s'", cfg.StoreBackend)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Expected DB_PORT default 5432, got %d", cfg.Database.Port)
	}
	if cfg.Cache.KeyPrefix != "tc_" {
		t.Errorf("Expected CACHE_KEY_PREFIX default 'tc_', got '%s'", cfg.Cache.KeyPrefix)
	}
	if cfg.Cache.LocalityTTL != 24*time.Hour {
		t.Errorf("Expected locality TTL of one day, got %v", cfg.Cache.LocalityTTL)
	}
	if cfg.Cache.OpTimeout != 500*time.Millisecond {
		t.Errorf("Expected cache op timeout 500ms, got %v", cfg.Cache.OpTimeout)
	}
	if cfg.Discovery.PopularLimit != 10 {
		t.Errorf("Expected POPULAR_LIMIT default 10, got %d", cfg.Discovery.PopularLimit)
	}
	if cfg.Events.Mode != "none" {
		t.Errorf("Expected EVENTS_MODE default 'none', got '%s'", cfg.Events.Mode)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected LOG_LEVEL default 'info', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	os.Clearenv()
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("CACHE_LOCALITY_TTL", "60")
	t.Setenv("CACHE_OP_TIMEOUT_MS", "50")
	t.Setenv("EVENTS_MODE", "stream")
	t.Setenv("MQTT_TOPIC", "custom/topic")
	t.Setenv("HYDRATE_CONCURRENCY", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.StoreBackend != "mongo" {
		t.Errorf("Expected 'mongo', got '%s'", cfg.StoreBackend)
	}
	if cfg.Database.Port != 6543 {
		t.Errorf("Expected DB_PORT 6543, got %d", cfg.Database.Port)
	}
	if cfg.Cache.LocalityTTL != time.Minute {
		t.Errorf("Expected 1m TTL, got %v", cfg.Cache.LocalityTTL)
	}
	if cfg.Cache.OpTimeout != 50*time.Millisecond {
		t.Errorf("Expected 50ms, got %v", cfg.Cache.OpTimeout)
	}
	if cfg.Events.Mode != "stream" {
		t.Errorf("Expected 'stream', got '%s'", cfg.Events.Mode)
	}
	if cfg.MQTT.Topic != "custom/topic" {
		t.Errorf("Expected 'custom/topic', got '%s'", cfg.MQTT.Topic)
	}
	if cfg.Discovery.HydrateConcurrency != 8 {
		t.Errorf("Expected fallback 8, got %d", cfg.Discovery.HydrateConcurrency)
	}
}

func TestLoad_SharedConfigOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("REDIS_POOL_SIZE", "32")
	t.Setenv("MQTT_QOS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Redis.PoolSize != 32 {
		t.Errorf("Expected REDIS_POOL_SIZE 32, got %d", cfg.Redis.PoolSize)
	}
	if cfg.MQTT.QoS != 2 {
		t.Errorf("Expected MQTT_QOS 2, got %d", cfg.MQTT.QoS)
	}
}

func TestLoad_InvalidQoSKeepsDefault(t *testing.T) {
	os.Clearenv()
	t.Setenv("MQTT_QOS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("Expected QoS to stay 1, got %d", cfg.MQTT.QoS)
	}
}
