// Package config loads runtime configuration and opens the storage backends.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	BackendMongo = "mongo"
	BackendLocal = "local"
)

// Config holds application configuration
type Config struct {
	Port              string
	LogLevel          string
	LogPretty         bool
	JWTSecret         string
	StorageBackend    string
	MongoURI          string
	DatabaseName      string
	LocalDBPath       string
	InitialCash       decimal.Decimal
	DefaultBroker     string
	ResetURLBase      string
	ValuationSchedule string
	TokenCleanup      string
	SessionEviction   string
	SessionMaxIdle    time.Duration
}

// Load reads configuration from environment variables. A .env file is loaded
// when present but is not required.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", true),
		JWTSecret:         getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-in-production"),
		MongoURI:          os.Getenv("MONGODB_URI"),
		DatabaseName:      getEnv("DATABASE_NAME", "money-suppli"),
		LocalDBPath:       getEnv("LOCAL_DB_PATH", "money-suppli.db"),
		InitialCash:       getEnvAsDecimal("INITIAL_CASH", decimal.NewFromInt(1000000)),
		DefaultBroker:     getEnv("DEFAULT_BROKER", "discount"),
		ResetURLBase:      getEnv("RESET_URL_BASE", "http://localhost:3000/reset-password"),
		ValuationSchedule: getEnv("VALUATION_SCHEDULE", "@daily"),
		TokenCleanup:      getEnv("TOKEN_CLEANUP_SCHEDULE", "@every 10m"),
		SessionEviction:   getEnv("SESSION_EVICTION_SCHEDULE", "@every 15m"),
		SessionMaxIdle:    getEnvAsDuration("SESSION_MAX_IDLE", 2*time.Hour),
	}

	backend := strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	switch {
	case backend == BackendMongo || backend == BackendLocal:
		cfg.StorageBackend = backend
	case cfg.MongoURI != "":
		cfg.StorageBackend = BackendMongo
	default:
		cfg.StorageBackend = BackendLocal
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := decimal.NewFromString(value)
	if err != nil || !d.IsPositive() {
		return fallback
	}
	return d
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
