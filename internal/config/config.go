package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Addr         string
	DBDSN        string
	Storage      string
	RedisAddr    string // empty keeps fan-out in process
	JWTSecret    string
	TokenTTL     time.Duration
	ReapInterval time.Duration
	KeyCacheSize int
	EventRate    float64 // socket events per second per connection
	EventBurst   int
	LogLevel     string
	LogFormat    string
}

// Load reads .env when present, then the environment. Every invalid value is
// reported, not just the first.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("Could not read .env file, using environment only")
	}

	var errs error
	cfg := &Config{
		Addr:      getEnv("ADDR", ":8080"),
		DBDSN:     getEnv("DB_DSN", ""),
		Storage:   getEnv("STORAGE", StoragePostgres),
		RedisAddr: getEnv("REDIS_ADDR", ""),
		JWTSecret: getEnv("JWT_SECRET", ""),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
	cfg.TokenTTL = getDuration("TOKEN_TTL", 24*time.Hour, &errs)
	cfg.ReapInterval = getDuration("REAP_INTERVAL", time.Minute, &errs)
	cfg.KeyCacheSize = getInt("KEY_CACHE_SIZE", 1024, &errs)
	cfg.EventRate = getFloat("WS_EVENT_RATE", 10, &errs)
	cfg.EventBurst = getInt("WS_EVENT_BURST", 20, &errs)

	if cfg.JWTSecret == "" {
		errs = multierr.Append(errs, errors.New("JWT_SECRET is not set"))
	}
	switch cfg.Storage {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DBDSN == "" {
			errs = multierr.Append(errs, errors.New("DB_DSN is not set"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.Storage))
	}
	if cfg.ReapInterval <= 0 {
		errs = multierr.Append(errs, errors.New("REAP_INTERVAL must be positive"))
	}
	if cfg.KeyCacheSize <= 0 {
		errs = multierr.Append(errs, errors.New("KEY_CACHE_SIZE must be positive"))
	}
	if cfg.EventRate <= 0 || cfg.EventBurst <= 0 {
		errs = multierr.Append(errs, errors.New("WS_EVENT_RATE and WS_EVENT_BURST must be positive"))
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}

	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

// ConfigureLogging applies LOG_LEVEL and LOG_FORMAT to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration, errs *error) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

func getInt(key string, fallback int, errs *error) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64, errs *error) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}
