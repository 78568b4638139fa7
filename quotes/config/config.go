// Package config reads the library's environment-driven defaults. Explicit
// options on the Market always win over these; the env only moves defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the tunable defaults: the HTTP layer, cache TTL and log level.
type Config struct {
	HTTPTimeout  time.Duration
	RetryTimes   int
	RetryDelay   time.Duration
	PoolSize     int
	CacheEnabled bool
	CacheTTL     time.Duration
	LogLevel     string
}

// Load reads configuration from a .env file if present, then the environment.
// Durations are given in seconds, fractions allowed.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		HTTPTimeout:  getEnvAsSeconds("QUOTES_HTTP_TIMEOUT", 10*time.Second),
		RetryTimes:   getEnvAsInt("QUOTES_RETRY_TIMES", 3),
		RetryDelay:   getEnvAsSeconds("QUOTES_RETRY_DELAY", 1*time.Second),
		PoolSize:     getEnvAsInt("QUOTES_POOL_SIZE", 10),
		CacheEnabled: getEnvAsBool("QUOTES_CACHE_ENABLED", true),
		CacheTTL:     getEnvAsSeconds("QUOTES_CACHE_TTL", 3600*time.Second),
		LogLevel:     getEnv("QUOTES_LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}
