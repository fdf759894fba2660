package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Host string
	Port string

	// Database settings
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Token cache settings
	CacheSize     int
	TokenCache    string
	TokenTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Court API settings
	CourtHTTPTimeout time.Duration
	CourtAuthTimeout time.Duration
	CourtsFile       string

	// Scheduler settings
	SchedulerEnabled bool
	SchedulerSpec    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabasePath:   getEnv("DATABASE_PATH", "./data/court_sync.db"),
		DatabaseDSN:    getEnv("DATABASE_DSN", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		TokenCache:     getEnv("TOKEN_CACHE", "memory"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		CourtsFile:     getEnv("COURTS_FILE", ""),
		SchedulerSpec:  getEnv("SCHEDULER_SPEC", "@every 1m"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.DatabaseDriver != "sqlite" && cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN is required for driver %q", cfg.DatabaseDriver)
	}

	switch cfg.TokenCache {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported TOKEN_CACHE %q", cfg.TokenCache)
	}

	var err error
	cfg.CacheSize, err = strconv.Atoi(getEnv("CACHE_SIZE", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_SIZE: %w", err)
	}

	tokenTTL, err := strconv.Atoi(getEnv("TOKEN_TTL", "55"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = time.Duration(tokenTTL) * time.Minute

	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	httpTimeout, err := strconv.Atoi(getEnv("COURT_HTTP_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid COURT_HTTP_TIMEOUT: %w", err)
	}
	cfg.CourtHTTPTimeout = time.Duration(httpTimeout) * time.Second

	authTimeout, err := strconv.Atoi(getEnv("COURT_AUTH_TIMEOUT", "15"))
	if err != nil {
		return nil, fmt.Errorf("invalid COURT_AUTH_TIMEOUT: %w", err)
	}
	cfg.CourtAuthTimeout = time.Duration(authTimeout) * time.Second

	cfg.SchedulerEnabled, err = strconv.ParseBool(getEnv("SCHEDULER_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_ENABLED: %w", err)
	}

	return cfg, nil
}

// DatabaseSource is the path or DSN handed to the database driver.
func (c *Config) DatabaseSource() string {
	if c.DatabaseDriver == "sqlite" {
		return c.DatabasePath
	}
	return c.DatabaseDSN
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
