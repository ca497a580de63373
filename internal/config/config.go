package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the tracking service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	DynamoDB   DynamoDBConfig   `yaml:"dynamodb"`
	Pipedrive  PipedriveConfig  `yaml:"pipedrive"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Environment    string `yaml:"environment"` // "production" hides error detail
	ReadTimeoutSec int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSec int   `yaml:"write_timeout_seconds"`
	IdleTimeoutSec int    `yaml:"idle_timeout_seconds"`
}

func (c ServerConfig) ReadTimeout() time.Duration  { return time.Duration(c.ReadTimeoutSec) * time.Second }
func (c ServerConfig) WriteTimeout() time.Duration { return time.Duration(c.WriteTimeoutSec) * time.Second }
func (c ServerConfig) IdleTimeout() time.Duration  { return time.Duration(c.IdleTimeoutSec) * time.Second }
func (c ServerConfig) IsProduction() bool          { return c.Environment == "production" }

// DatabaseConfig holds the relational store connection.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the rate-limiter / circuit-breaker-adjacent cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DynamoDBConfig holds the deferred-job KV store connection.
type DynamoDBConfig struct {
	Region   string `yaml:"region"`
	Table    string `yaml:"table"`
	Endpoint string `yaml:"endpoint"` // local/dev override, empty uses AWS default
}

// PipedriveConfig holds the outbound CRM adapter settings.
type PipedriveConfig struct {
	APIKey         string `yaml:"-"` // secret: env-var only, never from yaml
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

func (c PipedriveConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewsletterConfig holds the optional side-effect on form submissions.
type NewsletterConfig struct {
	APIURL    string `yaml:"api_url"`
	AuthToken string `yaml:"-"` // secret
}

func (c NewsletterConfig) Enabled() bool { return c.APIURL != "" }

// ArchiveConfig holds the external archival collaborator endpoint.
// Archival itself is out of scope (spec §1). These settings are loaded
// but not read elsewhere: no code in this repository marks events
// archived or deletes them.
type ArchiveConfig struct {
	Endpoint string `yaml:"endpoint"`
	Days     int    `yaml:"days"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"` // debug/info/warn/error
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads config from a YAML file and applies defaults for anything
// left zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Server.ReadTimeoutSec == 0 {
		cfg.Server.ReadTimeoutSec = 10
	}
	if cfg.Server.WriteTimeoutSec == 0 {
		cfg.Server.WriteTimeoutSec = 10
	}
	if cfg.Server.IdleTimeoutSec == 0 {
		cfg.Server.IdleTimeoutSec = 60
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.DynamoDB.Table == "" {
		cfg.DynamoDB.Table = "pixeltrack"
	}
	if cfg.DynamoDB.Region == "" {
		cfg.DynamoDB.Region = "us-west-2"
	}
	if cfg.Pipedrive.BaseURL == "" {
		cfg.Pipedrive.BaseURL = "https://api.pipedrive.com/v1"
	}
	if cfg.Pipedrive.TimeoutSeconds == 0 {
		cfg.Pipedrive.TimeoutSeconds = 5
	}
	if cfg.Pipedrive.MaxRetries == 0 {
		cfg.Pipedrive.MaxRetries = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env
// vars, so secrets can live in .env locally and in real env vars in
// production.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PIPEDRIVE_API_KEY"); v != "" {
		cfg.Pipedrive.APIKey = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Server.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("ARCHIVE_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Archive.Days = days
		}
	}
	if v := os.Getenv("NEWSLETTER_API_URL"); v != "" {
		cfg.Newsletter.APIURL = v
	}
	if v := os.Getenv("NEWSLETTER_AUTH_TOKEN"); v != "" {
		cfg.Newsletter.AuthToken = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.DynamoDB.Region = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.DynamoDB.Table = v
	}
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		cfg.DynamoDB.Endpoint = v
	}
	if v := os.Getenv("PIPEDRIVE_BASE_URL"); v != "" {
		cfg.Pipedrive.BaseURL = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
