package config

import (
	"os"
	"strconv"
	"time"

	"listing-discovery/common/config"
)

// Config listing-discovery service configuration
type Config struct {
	HTTPAddr string

	// StoreBackend: postgres | mongo | memory
	StoreBackend string
	StoreTimeout time.Duration

	Database config.DatabaseConfig
	Mongo    config.MongoConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Cache struct {
		KeyPrefix   string
		LocalityTTL time.Duration
		OpTimeout   time.Duration
	}

	Places struct {
		BaseURL           string
		APIKey            string
		Region            string
		Timeout           time.Duration
		AutocompleteTypes string
	}

	Discovery struct {
		PopularLimit       int
		HydrateConcurrency int
	}

	// Events: listing mutation feed
	Events struct {
		Mode          string // none | stream | mqtt
		Stream        string
		ConsumerGroup string
		ConsumerName  string
		BatchSize     int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.StoreBackend = getEnv("STORE_BACKEND", "postgres")
	cfg.StoreTimeout = getEnvMillis("STORE_TIMEOUT_MS", 5000)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "listings")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)
	// DB_PORT and friends
	cfg.Database.LoadFromEnv("DB")

	cfg.Mongo.URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", "listings")
	cfg.Mongo.Collection = getEnv("MONGO_COLLECTION", "listings")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	// REDIS_POOL_SIZE
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.Cache.KeyPrefix = getEnv("CACHE_KEY_PREFIX", "tc_")
	cfg.Cache.LocalityTTL = time.Duration(getEnvInt("CACHE_LOCALITY_TTL", 86400)) * time.Second
	cfg.Cache.OpTimeout = getEnvMillis("CACHE_OP_TIMEOUT_MS", 500)

	cfg.Places.BaseURL = getEnv("PLACES_BASE_URL", "https://maps.googleapis.com/maps/api/place")
	cfg.Places.APIKey = getEnv("PLACES_API_KEY", "")
	cfg.Places.Region = getEnv("PLACES_REGION", "us")
	cfg.Places.Timeout = getEnvMillis("PLACES_TIMEOUT_MS", 5000)
	cfg.Places.AutocompleteTypes = getEnv("PLACES_AUTOCOMPLETE_TYPES", "(regions)")

	cfg.Discovery.PopularLimit = getEnvInt("POPULAR_LIMIT", 10)
	cfg.Discovery.HydrateConcurrency = getEnvInt("HYDRATE_CONCURRENCY", 8)

	cfg.Events.Mode = getEnv("EVENTS_MODE", "none")
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "listing:events")
	cfg.Events.ConsumerGroup = getEnv("EVENTS_CONSUMER_GROUP", "listing-discovery-group")
	cfg.Events.ConsumerName = getEnv("EVENTS_CONSUMER_NAME", "listing-discovery-1")
	cfg.Events.BatchSize = getEnvInt("EVENTS_BATCH_SIZE", 10)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "listing-discovery")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "listings/events")
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue int) time.Duration {
	ms := getEnvInt(key, defaultValue)
	if ms == 0 {
		ms = defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}
