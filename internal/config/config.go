package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/neuralpositive/trackgate/internal/normalize"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Matching  MatchingConfig  `yaml:"matching"`
	Repair    RepairConfig    `yaml:"repair"`
	Logging   LoggingConfig   `yaml:"logging"`
	Normalize NormalizeConfig `yaml:"normalize"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	BasePath    string   `yaml:"base_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds object storage provider settings. Durations are
// plain seconds so they read naturally from YAML and env vars.
type StorageConfig struct {
	BaseURL                string `yaml:"base_url"`
	ServiceKey             string `yaml:"service_key"`
	Bucket                 string `yaml:"bucket"`
	PublicBucket           bool   `yaml:"public_bucket"`
	SignedTTLSeconds       int    `yaml:"signed_ttl_seconds"`
	UpstreamTimeoutSeconds int    `yaml:"upstream_timeout_seconds"`
}

// SignedTTL returns the signed URL lifetime as a duration.
func (s StorageConfig) SignedTTL() time.Duration {
	return time.Duration(s.SignedTTLSeconds) * time.Second
}

// UpstreamTimeout returns the proxied fetch deadline as a duration.
func (s StorageConfig) UpstreamTimeout() time.Duration {
	return time.Duration(s.UpstreamTimeoutSeconds) * time.Second
}

// IndexConfig holds bucket index cache settings.
type IndexConfig struct {
	TTLSeconds int      `yaml:"ttl_seconds"`
	PageSize   int      `yaml:"page_size"`
	Extensions []string `yaml:"extensions"`
}

// TTL returns the index freshness window as a duration.
func (i IndexConfig) TTL() time.Duration {
	return time.Duration(i.TTLSeconds) * time.Second
}

// MatchingConfig holds the score cutoffs for resolution decisions.
type MatchingConfig struct {
	HighThreshold   float64 `yaml:"high_threshold"`
	MediumThreshold float64 `yaml:"medium_threshold"`
	StreamFloor     float64 `yaml:"stream_floor"`
}

// RepairConfig holds repair worker settings.
type RepairConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// NormalizeConfig holds extra synonym fold rules merged over the built-in
// set.
type NormalizeConfig struct {
	Rules []normalize.Rule `yaml:"rules"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/trackgate.db",
		},
		Storage: StorageConfig{
			Bucket:                 "music",
			SignedTTLSeconds:       3600,
			UpstreamTimeoutSeconds: 30,
		},
		Index: IndexConfig{
			TTLSeconds: 600,
			PageSize:   1000,
		},
		Matching: MatchingConfig{
			HighThreshold:   0.75,
			MediumThreshold: 0.4,
			StreamFloor:     0.3,
		},
		Repair: RepairConfig{
			RatePerSecond: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("TG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("TG_BASE_PATH"); v != "" {
		c.Server.BasePath = v
	}
	if v := os.Getenv("TG_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("TG_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("TG_STORAGE_URL"); v != "" {
		c.Storage.BaseURL = v
	}
	if v := os.Getenv("TG_STORAGE_SERVICE_KEY"); v != "" {
		c.Storage.ServiceKey = v
	}
	if v := os.Getenv("TG_STORAGE_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("TG_STORAGE_PUBLIC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.PublicBucket = b
		}
	}
	if v := os.Getenv("TG_SIGNED_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.SignedTTLSeconds = n
		}
	}
	if v := os.Getenv("TG_UPSTREAM_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Storage.UpstreamTimeoutSeconds = n
		}
	}
	if v := os.Getenv("TG_INDEX_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.TTLSeconds = n
		}
	}
	if v := os.Getenv("TG_INDEX_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.PageSize = n
		}
	}
	if v := os.Getenv("TG_INDEX_EXTENSIONS"); v != "" {
		c.Index.Extensions = splitList(v)
	}
	if v := os.Getenv("TG_MATCH_HIGH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.HighThreshold = f
		}
	}
	if v := os.Getenv("TG_MATCH_MEDIUM"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.MediumThreshold = f
		}
	}
	if v := os.Getenv("TG_STREAM_FLOOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Matching.StreamFloor = f
		}
	}
	if v := os.Getenv("TG_REPAIR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Repair.RatePerSecond = f
		}
	}
	if v := os.Getenv("TG_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TG_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TG_LOG_PATH"); v != "" {
		c.Logging.Path = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.Matching.HighThreshold < c.Matching.MediumThreshold {
		return fmt.Errorf("high threshold %v below medium threshold %v",
			c.Matching.HighThreshold, c.Matching.MediumThreshold)
	}
	if c.Index.PageSize < 1 {
		return fmt.Errorf("invalid index page size: %d", c.Index.PageSize)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}

// FoldRules returns the built-in synonym rules with any configured extras
// appended. Later rules win on equal variants.
func (c *Config) FoldRules() []normalize.Rule {
	return append(normalize.DefaultRules(), c.Normalize.Rules...)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
