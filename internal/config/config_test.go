package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  logging_level: debug
  environment: development

database:
  url: "postgres://localhost/ev"
  max_conns: 20
  min_conns: 2
  health_check_interval: 15s
  connect_timeout: 5s

redis:
  addr: "localhost:6379"
  queue_max_attempts: 3

batch:
  size: 500
  timeout: 2s

session:
  cache_ttl: 10s
  cache_size: 5000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LoggingLevel)
	assert.Equal(t, "development", cfg.Server.Environment)

	assert.Equal(t, "postgres://localhost/ev", cfg.Database.URL)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, int32(2), cfg.Database.MinConns)
	assert.Equal(t, 15*time.Second, cfg.Database.HealthCheckInterval)
	assert.Equal(t, 5*time.Second, cfg.Database.ConnectTimeout)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.QueueMaxAttempts)

	assert.Equal(t, 500, cfg.Batch.Size)
	assert.Equal(t, 2*time.Second, cfg.Batch.Timeout)

	assert.Equal(t, 10*time.Second, cfg.Session.CacheTTL)
	assert.Equal(t, 5000, cfg.Session.CacheSize)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/ev"

redis:
  addr: "localhost:6379"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LoggingLevel)
	assert.Equal(t, "production", cfg.Server.Environment)
	assert.Equal(t, int32(50), cfg.Database.MaxConns)
	assert.Equal(t, int32(5), cfg.Database.MinConns)
	assert.Equal(t, 30*time.Second, cfg.Database.HealthCheckInterval)
	assert.Equal(t, 10*time.Second, cfg.Database.ConnectTimeout)
	assert.Equal(t, 5, cfg.Redis.QueueMaxAttempts)
	assert.Equal(t, 1000, cfg.Batch.Size)
	assert.Equal(t, 10*time.Second, cfg.Batch.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Session.CacheTTL)
	assert.Equal(t, 10000, cfg.Session.CacheSize)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/non/existent/path.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server:\n  port: [unterminated\n")

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoad_MissingDatabaseURL_FailsValidation(t *testing.T) {
	path := writeConfig(t, `
redis:
  addr: "localhost:6379"
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database.url is required")
}

func TestLoad_MissingRedisAddr_FailsValidation(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://localhost/ev"
`)

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis.addr is required")
}

func TestLoad_EnvVariables(t *testing.T) {
	t.Setenv("TEST_PORT", "9090")
	t.Setenv("TEST_DB_URL", "postgres://env/ev")
	t.Setenv("TEST_REDIS_ADDR", "redis-env:6379")

	path := writeConfig(t, `
server:
  port: os.environ/TEST_PORT

database:
  url: os.environ/TEST_DB_URL

redis:
  addr: os.environ/TEST_REDIS_ADDR
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres://env/ev", cfg.Database.URL)
	assert.Equal(t, "redis-env:6379", cfg.Redis.Addr)
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid port", 8080, false},
		{"min valid port", 1, false},
		{"max valid port", 65535, false},
		{"port zero", 0, true},
		{"negative port", -1, true},
		{"port too high", 70000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Server.Port = tt.port
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate_LoggingLevel(t *testing.T) {
	tests := []struct {
		level   string
		wantErr bool
	}{
		{"info", false},
		{"debug", false},
		{"warn", false},
		{"error", false},
		{"warning", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validBaseConfig()
			cfg.Server.LoggingLevel = tt.level
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate_MaxConnsBelowMinConns(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Database.MaxConns = 2
	cfg.Database.MinConns = 10

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_conns")
}

func TestConfig_Validate_BatchSizeAndTimeout(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Batch.Size = 0
	assert.Error(t, cfg.Validate())

	cfg = validBaseConfig()
	cfg.Batch.Timeout = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_SessionCacheSize(t *testing.T) {
	cfg := validBaseConfig()
	cfg.Session.CacheSize = 0
	assert.Error(t, cfg.Validate())
}

func TestConfig_Normalize_FillsZeroValues(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/ev"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
	}

	cfg.Normalize()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LoggingLevel)
	assert.Equal(t, 1000, cfg.Batch.Size)
	assert.Equal(t, 10000, cfg.Session.CacheSize)
}

func validBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			LoggingLevel: "info",
			Environment:  "production",
		},
		Database: DatabaseConfig{
			URL:                 "postgres://localhost/ev",
			MaxConns:            50,
			MinConns:            5,
			HealthCheckInterval: 30 * time.Second,
			ConnectTimeout:      10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			QueueMaxAttempts: 5,
		},
		Batch: BatchConfig{
			Size:    1000,
			Timeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CacheTTL:  5 * time.Second,
			CacheSize: 10000,
		},
	}
}
