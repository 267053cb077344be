// Package config reads storefront settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mlionhart/hartmart/internal/orders"
	"github.com/mlionhart/hartmart/internal/session"
)

type Config struct {
	ServiceName string
	Env         string
	LogLevel    string

	HTTPPort           string
	GRPCPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	CatalogDBPath         string
	CatalogMigrationsPath string
	CatalogCacheTTL       time.Duration

	// Postgres is nil when ORDERS_DB_HOST is unset; orders are then kept in
	// memory.
	Postgres *orders.Credentials

	// Mongo.URI is empty when cart sessions are kept in memory.
	Mongo        session.MongoConfig
	RedisAddr    string
	KafkaBrokers []string

	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	ShippingCents int64
	Currency      string
}

func Load() (*Config, error) {
	var errs []string
	p := parser{errs: &errs}

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "storefront"),
		Env:         getEnv("APP_ENV", "dev"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "9090"),
		RequestTimeout:     p.duration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: p.int64("MAX_REQUEST_BODY_SIZE", 1<<20),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", "storefront.db"),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "internal/catalog/migrations"),
		CatalogCacheTTL:       p.duration("CATALOG_CACHE_TTL", time.Minute),

		Mongo: session.MongoConfig{
			URI:                    os.Getenv("MONGO_URI"),
			Database:               getEnv("MONGO_DATABASE", "storefront"),
			MaxPoolSize:            uint64(p.int64("MONGO_MAX_POOL_SIZE", 50)),
			MinPoolSize:            uint64(p.int64("MONGO_MIN_POOL_SIZE", 5)),
			ConnectTimeout:         p.duration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
			ServerSelectionTimeout: p.duration("MONGO_SERVER_SELECTION_TIMEOUT", 5*time.Second),
			PingTimeout:            p.duration("MONGO_PING_TIMEOUT", 5*time.Second),
		},
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: getEnvList("KAFKA_BROKERS"),

		GatewayURL:     os.Getenv("PAYMENT_GATEWAY_URL"),
		GatewayAPIKey:  os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		GatewayTimeout: p.duration("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),

		ShippingCents: p.int64("SHIPPING_CENTS", 2000),
		Currency:      strings.ToUpper(getEnv("CURRENCY", "USD")),
	}

	if host := os.Getenv("ORDERS_DB_HOST"); host != "" {
		cfg.Postgres = &orders.Credentials{
			Host:              host,
			Port:              int(p.int64("ORDERS_DB_PORT", 5432)),
			User:              getEnv("ORDERS_DB_USER", "postgres"),
			Password:          os.Getenv("ORDERS_DB_PASSWORD"),
			DBName:            getEnv("ORDERS_DB_NAME", "orders"),
			MigrationsDirPath: getEnv("ORDERS_MIGRATIONS_PATH", "internal/orders/migrations"),
		}
	}

	// the checkout handler needs time left after the gateway answers to save
	// the order and clear the session
	if cfg.RequestTimeout <= cfg.GatewayTimeout {
		errs = append(errs, fmt.Sprintf("REQUEST_TIMEOUT (%s) must exceed PAYMENT_GATEWAY_TIMEOUT (%s)", cfg.RequestTimeout, cfg.GatewayTimeout))
	}
	if int64(cfg.Mongo.MaxPoolSize) < 1 || int64(cfg.Mongo.MinPoolSize) < 0 || cfg.Mongo.MinPoolSize > cfg.Mongo.MaxPoolSize {
		errs = append(errs, "MONGO_MIN_POOL_SIZE must be between 0 and MONGO_MAX_POOL_SIZE, which must be positive")
	}
	if cfg.ShippingCents < 0 {
		errs = append(errs, "SHIPPING_CENTS must not be negative")
	}
	if len(cfg.Currency) != 3 {
		errs = append(errs, fmt.Sprintf("CURRENCY must be a 3-letter code, got %q", cfg.Currency))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parser collects every malformed value so Load can report them together.
type parser struct {
	errs *[]string
}

func (p parser) int64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
		return defaultValue
	}
	return v
}

func (p parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		*p.errs = append(*p.errs, fmt.Sprintf("%s: %q is not a positive duration", key, raw))
		return defaultValue
	}
	return v
}
