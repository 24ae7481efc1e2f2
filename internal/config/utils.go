package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// resolveEnvString resolves environment variable if value is in format "os.environ/VAR_NAME"
func resolveEnvString(value string) string {
	const prefix = "os.environ/"
	if strings.HasPrefix(value, prefix) {
		envVar := strings.TrimPrefix(value, prefix)
		if envValue := os.Getenv(envVar); envValue != "" {
			return envValue
		}
		slog.Warn("environment variable not set, returning empty string",
			"env_var", envVar,
			"pattern", value,
		)
		return ""
	}
	return value
}

// parseFunc is a function type that parses a string value into the desired type
type parseFunc[T any] func(string) (T, error)

// resolveEnvValue resolves environment variable and parses it using the provided parser
func resolveEnvValue[T any](value string, defaultValue T, parser parseFunc[T], typeName string) (T, error) {
	if value == "" {
		return defaultValue, nil
	}

	resolved := resolveEnvString(value)
	parsed, err := parser(resolved)
	if err != nil {
		return defaultValue, fmt.Errorf("failed to parse %s from '%s': %w", typeName, resolved, err)
	}
	return parsed, nil
}

// resolveEnvInt resolves environment variable and converts to int
func resolveEnvInt(value string, defaultValue int) (int, error) {
	return resolveEnvValue(value, defaultValue, strconv.Atoi, "int")
}

// resolveEnvBool resolves environment variable and converts to bool
func resolveEnvBool(value string, defaultValue bool) (bool, error) {
	return resolveEnvValue(value, defaultValue, strconv.ParseBool, "bool")
}

// resolveEnvDuration resolves environment variable and converts to duration
func resolveEnvDuration(value string, defaultValue time.Duration) (time.Duration, error) {
	return resolveEnvValue(value, defaultValue, time.ParseDuration, "duration")
}

// PrintConfig logs the loaded configuration. database.url is left out here;
// storage.New logs it through security.MaskDatabaseURL. redis.addr is
// logged as is.
func PrintConfig(logger *slog.Logger, cfg *Config) {
	logger.Info("=== Configuration Loaded ===")

	logger.Info("server",
		"port", cfg.Server.Port,
		"logging_level", cfg.Server.LoggingLevel,
		"environment", cfg.Server.Environment,
	)

	logger.Info("database",
		"max_conns", cfg.Database.MaxConns,
		"min_conns", cfg.Database.MinConns,
		"health_check_interval", cfg.Database.HealthCheckInterval.String(),
		"connect_timeout", cfg.Database.ConnectTimeout.String(),
	)

	logger.Info("redis",
		"addr", cfg.Redis.Addr,
		"queue_max_attempts", cfg.Redis.QueueMaxAttempts,
	)

	logger.Info("batch",
		"size", cfg.Batch.Size,
		"timeout", cfg.Batch.Timeout.String(),
	)

	logger.Info("session",
		"cache_ttl", cfg.Session.CacheTTL.String(),
		"cache_size", cfg.Session.CacheSize,
	)

	logger.Info("=== Configuration Ready ===")
}
