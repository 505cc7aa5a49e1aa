package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Tracking TrackingConfig `yaml:"tracking"`
	Import   ImportConfig   `yaml:"import"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StoreConfig holds record store gateway settings. Type selects the
// backend: "dynamodb" for DynamoDB, "memory" for the in-process store used
// in local development and tests.
type StoreConfig struct {
	Type          string `yaml:"type"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	S3Bucket      string `yaml:"s3_bucket"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // empty uses the default credential chain (IAM role)
}

// GetAWSProfile returns the AWS profile, with environment variable override.
func (c StoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds Redis connection settings for the tracking queue and
// the shared dedup cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MailerConfig holds mail transport settings. Type selects the sender:
// "ses" for AWS SES v2, "log" for the log-only sender used in development.
type MailerConfig struct {
	Type      string `yaml:"type"`
	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	AWSRegion string `yaml:"aws_region"`
	BatchSize int    `yaml:"batch_size"`
}

// TrackingConfig holds engagement-tracking settings.
type TrackingConfig struct {
	DedupBackend      string `yaml:"dedup_backend"` // "memory" or "redis"
	DedupWindowMins   int    `yaml:"dedup_window_minutes"`
	DedupCacheSize    int    `yaml:"dedup_cache_size"`
	ConsumerWorkers   int    `yaml:"consumer_workers"`
	MaxUpdateAttempts int    `yaml:"max_update_attempts"`
	BaseURL           string `yaml:"base_url"` // public base URL for pixel/click links
}

// DedupWindow returns the dedup window as a duration.
func (c TrackingConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowMins) * time.Minute
}

// ImportConfig holds bulk CSV import settings. Upload archiving is
// governed by store.s3_bucket: set it and raw payloads are kept, leave it
// empty and archiving is a no-op.
type ImportConfig struct {
	ProgressEveryRows int   `yaml:"progress_every_rows"`
	MaxFileBytes      int64 `yaml:"max_file_bytes"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS. A
// missing config file is not an error; defaults are used instead.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Store.DynamoDBTable = v
	}
	if v := os.Getenv("IMPORT_S3_BUCKET"); v != "" {
		cfg.Store.S3Bucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Store.AWSRegion = v
	}
	if v := os.Getenv("TRACKING_BASE_URL"); v != "" {
		cfg.Tracking.BaseURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Store.AWSRegion == "" {
		c.Store.AWSRegion = "us-east-1"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Mailer.Type == "" {
		c.Mailer.Type = "log"
	}
	if c.Mailer.BatchSize == 0 {
		c.Mailer.BatchSize = 100
	}
	if c.Mailer.AWSRegion == "" {
		c.Mailer.AWSRegion = c.Store.AWSRegion
	}
	if c.Tracking.DedupBackend == "" {
		c.Tracking.DedupBackend = "memory"
	}
	if c.Tracking.DedupWindowMins == 0 {
		c.Tracking.DedupWindowMins = 60
	}
	if c.Tracking.DedupCacheSize == 0 {
		c.Tracking.DedupCacheSize = 10000
	}
	if c.Tracking.ConsumerWorkers == 0 {
		c.Tracking.ConsumerWorkers = 4
	}
	if c.Tracking.MaxUpdateAttempts == 0 {
		c.Tracking.MaxUpdateAttempts = 3
	}
	if c.Import.ProgressEveryRows == 0 {
		c.Import.ProgressEveryRows = 25
	}
	if c.Import.MaxFileBytes == 0 {
		c.Import.MaxFileBytes = 100 * 1024 * 1024 // 100MB
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
