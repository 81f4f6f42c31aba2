package config

import (
	"fmt"
	"time"

	"github.com/utafrali/SouvenirShop/pkg/breaker"
	pkgconfig "github.com/utafrali/SouvenirShop/pkg/config"
	"github.com/utafrali/SouvenirShop/pkg/database"
	"github.com/utafrali/SouvenirShop/pkg/tracing"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreRedis    = "redis"
)

// Config holds all configuration for the souvenir engine binaries.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Ops HTTP server (health and metrics)
	HTTPPort int `env:"SOUVENIR_HTTP_PORT" envDefault:"8010"`

	// Store selection
	CatalogStore string `env:"CATALOG_STORE" envDefault:"postgres"`
	CartStore    string `env:"CART_STORE" envDefault:"redis"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"souvenirs"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"souvenirs_secret"`
	PostgresDB   string `env:"SOUVENIR_DB_NAME" envDefault:"souvenirs"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// MongoDB
	MongoURI         string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase    string `env:"MONGO_DATABASE" envDefault:"souvenirs"`
	MongoMaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE" envDefault:"25"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours; 0 keeps carts forever.
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Worker idempotency window for processed event IDs.
	EventDedupTTLHours int `env:"EVENT_DEDUP_TTL_HOURS" envDefault:"24"`

	// Worker purge schedule in minutes; 0 disables the scheduled purge.
	PurgeIntervalMins int `env:"PURGE_INTERVAL_MINUTES" envDefault:"0"`

	// Store circuit breakers
	BreakerEnabled      bool    `env:"STORE_BREAKER_ENABLED" envDefault:"true"`
	BreakerTimeoutSecs  int     `env:"STORE_BREAKER_TIMEOUT_SECONDS" envDefault:"30"`
	BreakerFailureRatio float64 `env:"STORE_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32  `env:"STORE_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// DotenvFile is read, when present in the working directory, before the
// environment is parsed.
const DotenvFile = ".env.local"

// Load reads configuration from environment variables, falling back to
// DotenvFile for variables that are not set.
func Load() (*Config, error) {
	if err := pkgconfig.LoadDotenv(DotenvFile); err != nil {
		return nil, fmt.Errorf("load souvenir config: %w", err)
	}
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load souvenir config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants. It is called by pkgconfig.Load.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CatalogStore {
	case StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("CATALOG_STORE must be %q or %q, got %q", StorePostgres, StoreMongo, c.CatalogStore)
	}
	switch c.CartStore {
	case StoreRedis, StoreMongo:
	default:
		return fmt.Errorf("CART_STORE must be %q or %q, got %q", StoreRedis, StoreMongo, c.CartStore)
	}
	if c.CatalogStore == StorePostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	}
	if c.UsesMongo() && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.PurgeIntervalMins < 0 {
		return fmt.Errorf("PURGE_INTERVAL_MINUTES must not be negative, got %d", c.PurgeIntervalMins)
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative, got %d", c.CartTTL)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1.0 {
		return fmt.Errorf("STORE_BREAKER_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.BreakerFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// UsesMongo reports whether either store lives in MongoDB.
func (c *Config) UsesMongo() bool {
	return c.CatalogStore == StoreMongo || c.CartStore == StoreMongo
}

// Postgres returns the pool configuration for the catalog database.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Mongo returns the MongoDB client configuration.
func (c *Config) Mongo() database.MongoConfig {
	cfg := database.DefaultMongoConfig()
	cfg.URI = c.MongoURI
	cfg.Database = c.MongoDatabase
	cfg.MaxPoolSize = c.MongoMaxPoolSize
	return cfg
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Addr = c.RedisAddr
	cfg.Password = c.RedisPass
	cfg.DB = c.RedisDB
	return cfg
}

// CartTTLDuration returns the cart expiry, or 0 when carts never expire.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// EventDedupTTL returns how long processed event IDs are remembered.
func (c *Config) EventDedupTTL() time.Duration {
	return time.Duration(c.EventDedupTTLHours) * time.Hour
}

// PurgeInterval returns the scheduled purge period, or 0 when disabled.
func (c *Config) PurgeInterval() time.Duration {
	return time.Duration(c.PurgeIntervalMins) * time.Minute
}

// SlowQueryThreshold returns the slow-query logging threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}

// Breaker returns the circuit breaker configuration for the named store.
// Only timeouts and connection failures count against the breaker.
func (c *Config) Breaker(name string) breaker.Config {
	cfg := breaker.DefaultConfig(name)
	cfg.Timeout = time.Duration(c.BreakerTimeoutSecs) * time.Second
	cfg.FailureRatio = c.BreakerFailureRatio
	cfg.MinRequests = c.BreakerMinRequests
	cfg.IsFailure = database.IsUnavailable
	return cfg
}

// Tracing returns the OpenTelemetry configuration for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	cfg := tracing.DefaultConfig(serviceName)
	cfg.Environment = c.Environment
	cfg.OTLPEndpoint = c.OTELEndpoint
	cfg.SampleRate = c.OTELSampleRate
	cfg.Enabled = c.OTELEnabled
	return cfg
}
