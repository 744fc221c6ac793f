package config

import (
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	ServerPort         string
	StoreBackend       string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTExpiry          time.Duration
	ResetRetryInterval time.Duration
	SendTimeout        time.Duration
	DeviceChannel      string
	ConfigPageURL      string
	LogLevel           string
	LogFormat          string
}

func LoadConfig() (*Config, error) {
	expiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "8760h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}

	retryInterval, err := time.ParseDuration(getEnv("RESET_RETRY_INTERVAL", "5s"))
	if err != nil {
		return nil, errors.New("invalid RESET_RETRY_INTERVAL format")
	}
	if retryInterval <= 0 {
		return nil, errors.New("RESET_RETRY_INTERVAL must be positive")
	}

	sendTimeout, err := time.ParseDuration(getEnv("SEND_TIMEOUT", "10s"))
	if err != nil {
		return nil, errors.New("invalid SEND_TIMEOUT format")
	}
	if sendTimeout <= 0 {
		return nil, errors.New("SEND_TIMEOUT must be positive")
	}

	cfg := &Config{
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		StoreBackend:       getEnv("STORE_BACKEND", BackendRedis),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWTExpiry:          expiry,
		ResetRetryInterval: retryInterval,
		SendTimeout:        sendTimeout,
		DeviceChannel:      getEnv("DEVICE_CHANNEL", "device:outbox"),
		ConfigPageURL:      getEnv("CONFIG_PAGE_URL", "http://localhost:8080/static/config.html"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	// Validate required fields
	switch cfg.StoreBackend {
	case BackendRedis, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
