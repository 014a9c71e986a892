package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	App       AppConfig
	Events    EventsConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// AppConfig holds application-level secrets and limits.
type AppConfig struct {
	// SecretKey derives the encryption key for stored service
	// credentials. Changing it makes existing ciphertexts unreadable.
	SecretKey string
}

// EventsConfig tunes the progress event bus.
type EventsConfig struct {
	HistoryTTL time.Duration
}

// RetentionConfig controls pruning of old generation history.
type RetentionConfig struct {
	Days        int
	DeletePosts bool
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxOpenConns = 10
	defaultMaxIdleConns = 5

	defaultEventHistoryTTL = 300 * time.Second
	defaultRetentionDays   = 0 // disabled
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: defaultMaxOpenConns,
			MaxIdleConns: defaultMaxIdleConns,
		},
		App: AppConfig{
			SecretKey: os.Getenv("APP_SECRET_KEY"),
		},
		Events: EventsConfig{
			HistoryTTL: defaultEventHistoryTTL,
		},
		Retention: RetentionConfig{
			Days: defaultRetentionDays,
		},
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.App.SecretKey == "" {
		return Config{}, fmt.Errorf("APP_SECRET_KEY is required")
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DATABASE_MAX_OPEN_CONNS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_OPEN_CONNS: %w", err)
		}
		cfg.Database.MaxOpenConns = n
	}

	if v := os.Getenv("DATABASE_MAX_IDLE_CONNS"); v != "" {
		n, err := parsePositiveInt(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DATABASE_MAX_IDLE_CONNS: %w", err)
		}
		cfg.Database.MaxIdleConns = n
	}

	if v := os.Getenv("EVENT_HISTORY_TTL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid EVENT_HISTORY_TTL_SECONDS: %w", err)
		}
		cfg.Events.HistoryTTL = d
	}

	if v := os.Getenv("HISTORY_RETENTION_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid HISTORY_RETENTION_DAYS: must be a non-negative integer")
		}
		cfg.Retention.Days = n
	}

	if v := os.Getenv("HISTORY_RETENTION_DELETE_POSTS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid HISTORY_RETENTION_DELETE_POSTS: %w", err)
		}
		cfg.Retention.DeletePosts = b
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
