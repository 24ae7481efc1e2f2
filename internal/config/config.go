// Package config loads this service's YAML configuration, resolving any
// "os.environ/VAR_NAME" value against the process environment so secrets
// never sit in a checked-in config file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration, one section per component in §6.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Broker   BrokerConfig   `yaml:"broker"`
	Batch    BatchConfig    `yaml:"batch"`
	Session  SessionConfig  `yaml:"session"`
}

type ServerConfig struct {
	Port         int    `yaml:"port"`          // default 8080
	LoggingLevel string `yaml:"logging_level"` // default "info"
	Environment  string `yaml:"environment"`   // "development" or "production"
}

type DatabaseConfig struct {
	URL                 string        `yaml:"url"` // os.environ/DATABASE_URL
	MaxConns            int32         `yaml:"max_conns"`
	MinConns            int32         `yaml:"min_conns"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
}

type RedisConfig struct {
	Addr             string `yaml:"addr"` // os.environ/REDIS_ADDR
	QueueMaxAttempts int    `yaml:"queue_max_attempts"`
}

// BrokerConfig configures the wire-transport Subscriber implementation,
// which is out of scope for the ingestion pipeline itself.
type BrokerConfig struct {
	URL string `yaml:"url"` // os.environ/BROKER_URL
}

type BatchConfig struct {
	Size    int           `yaml:"size"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

// UnmarshalYAML implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Port         string `yaml:"port"`
		LoggingLevel string `yaml:"logging_level"`
		Environment  string `yaml:"environment"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	port, err := resolveEnvInt(temp.Port, 8080)
	if err != nil {
		return fmt.Errorf("server.port: %w", err)
	}
	s.Port = port
	s.LoggingLevel = resolveEnvString(temp.LoggingLevel)
	s.Environment = resolveEnvString(temp.Environment)
	return nil
}

// UnmarshalYAML implements custom unmarshaling for DatabaseConfig
func (d *DatabaseConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		URL                 string `yaml:"url"`
		MaxConns            string `yaml:"max_conns"`
		MinConns            string `yaml:"min_conns"`
		HealthCheckInterval string `yaml:"health_check_interval"`
		ConnectTimeout      string `yaml:"connect_timeout"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	d.URL = resolveEnvString(temp.URL)

	maxConns, err := resolveEnvInt(temp.MaxConns, 50)
	if err != nil {
		return fmt.Errorf("database.max_conns: %w", err)
	}
	d.MaxConns = int32(maxConns)

	minConns, err := resolveEnvInt(temp.MinConns, 5)
	if err != nil {
		return fmt.Errorf("database.min_conns: %w", err)
	}
	d.MinConns = int32(minConns)

	d.HealthCheckInterval, err = resolveEnvDuration(temp.HealthCheckInterval, 30*time.Second)
	if err != nil {
		return fmt.Errorf("database.health_check_interval: %w", err)
	}
	d.ConnectTimeout, err = resolveEnvDuration(temp.ConnectTimeout, 10*time.Second)
	if err != nil {
		return fmt.Errorf("database.connect_timeout: %w", err)
	}
	return nil
}

// UnmarshalYAML implements custom unmarshaling for RedisConfig
func (r *RedisConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Addr             string `yaml:"addr"`
		QueueMaxAttempts string `yaml:"queue_max_attempts"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	r.Addr = resolveEnvString(temp.Addr)
	maxAttempts, err := resolveEnvInt(temp.QueueMaxAttempts, 5)
	if err != nil {
		return fmt.Errorf("redis.queue_max_attempts: %w", err)
	}
	r.QueueMaxAttempts = maxAttempts
	return nil
}

// UnmarshalYAML implements custom unmarshaling for BrokerConfig
func (b *BrokerConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		URL string `yaml:"url"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}
	b.URL = resolveEnvString(temp.URL)
	return nil
}

// UnmarshalYAML implements custom unmarshaling for BatchConfig
func (b *BatchConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		Size    string `yaml:"size"`
		Timeout string `yaml:"timeout"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	size, err := resolveEnvInt(temp.Size, 1000)
	if err != nil {
		return fmt.Errorf("batch.size: %w", err)
	}
	b.Size = size

	b.Timeout, err = resolveEnvDuration(temp.Timeout, 10*time.Second)
	if err != nil {
		return fmt.Errorf("batch.timeout: %w", err)
	}
	return nil
}

// UnmarshalYAML implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalYAML(value *yaml.Node) error {
	type tempConfig struct {
		CacheTTL  string `yaml:"cache_ttl"`
		CacheSize string `yaml:"cache_size"`
	}
	var temp tempConfig
	if err := value.Decode(&temp); err != nil {
		return err
	}

	var err error
	s.CacheTTL, err = resolveEnvDuration(temp.CacheTTL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("session.cache_ttl: %w", err)
	}
	s.CacheSize, err = resolveEnvInt(temp.CacheSize, 10000)
	if err != nil {
		return fmt.Errorf("session.cache_size: %w", err)
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Normalize applies defaults that only make sense once the whole struct is
// populated (as opposed to the per-section defaults each UnmarshalYAML
// already applies when its section is present but a field is omitted).
func (c *Config) Normalize() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LoggingLevel == "" {
		c.Server.LoggingLevel = "info"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "production"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 50
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 5
	}
	if c.Database.HealthCheckInterval == 0 {
		c.Database.HealthCheckInterval = 30 * time.Second
	}
	if c.Database.ConnectTimeout == 0 {
		c.Database.ConnectTimeout = 10 * time.Second
	}
	if c.Redis.QueueMaxAttempts == 0 {
		c.Redis.QueueMaxAttempts = 5
	}
	if c.Batch.Size == 0 {
		c.Batch.Size = 1000
	}
	if c.Batch.Timeout == 0 {
		c.Batch.Timeout = 10 * time.Second
	}
	if c.Session.CacheTTL == 0 {
		c.Session.CacheTTL = 5 * time.Second
	}
	if c.Session.CacheSize == 0 {
		c.Session.CacheSize = 10000
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "warn": true, "error": true}
	if !validLevels[c.Server.LoggingLevel] {
		return fmt.Errorf("invalid logging_level: %s (must be debug, info, warn, or error)", c.Server.LoggingLevel)
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Redis.QueueMaxAttempts <= 0 {
		return fmt.Errorf("invalid redis.queue_max_attempts: %d", c.Redis.QueueMaxAttempts)
	}

	if c.Batch.Size <= 0 {
		return fmt.Errorf("invalid batch.size: %d", c.Batch.Size)
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("invalid batch.timeout: %v", c.Batch.Timeout)
	}

	if c.Session.CacheSize <= 0 {
		return fmt.Errorf("invalid session.cache_size: %d", c.Session.CacheSize)
	}

	return nil
}
