// Package config holds Folio's configuration and the layers it is loaded
// from: defaults, a YAML file, the environment and a secrets directory.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/SmitUplenchwar2687/Folio/internal/quota"
	"github.com/SmitUplenchwar2687/Folio/internal/storage"
	"github.com/SmitUplenchwar2687/Folio/internal/window"
)

// Config is the top-level configuration for a Folio process.
type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Quota      QuotaConfig     `yaml:"quota"`
	Identity   IdentityConfig  `yaml:"identity"`
	Storage    storage.Config  `yaml:"storage"`
	Generator  GeneratorConfig `yaml:"generator"`
	Extractor  ExtractorConfig `yaml:"extractor"`
	Log        LogConfig       `yaml:"log"`
	Record     RecordConfig    `yaml:"record"`
	SecretsDir string          `yaml:"secrets_dir"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
}

// QuotaConfig controls request accounting.
type QuotaConfig struct {
	Limit              int64         `yaml:"limit"`
	Retention          time.Duration `yaml:"retention"`
	Namespace          string        `yaml:"namespace"`
	RequireKnownClient bool          `yaml:"require_known_client"`
}

// IdentityConfig controls how unresolvable clients are treated on reads.
type IdentityConfig struct {
	RejectUnknownOnRead bool `yaml:"reject_unknown_on_read"`
}

// GeneratorConfig configures the Markdown generator.
type GeneratorConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	PromptFile string        `yaml:"prompt_file"`
	MaxRPS     float64       `yaml:"max_rps"`
	Burst      int           `yaml:"burst"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// ExtractorConfig configures PDF text extraction.
type ExtractorConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RecordConfig enables usage recording. An empty File disables it.
type RecordConfig struct {
	File string `yaml:"file"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    3 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxUploadBytes:  20 << 20,
		},
		Quota: QuotaConfig{
			Limit:              quota.DefaultLimit,
			Retention:          quota.DefaultRetentionTTL,
			Namespace:          window.DefaultNamespace,
			RequireKnownClient: true,
		},
		Storage: storage.Config{
			Backend: storage.BackendMemory,
			Memory: storage.MemoryConfig{
				CleanupInterval: time.Minute,
			},
			Redis: storage.RedisConfig{
				Host:        "localhost",
				Port:        6379,
				PoolSize:    20,
				MaxRetries:  3,
				DialTimeout: 5 * time.Second,
			},
			SQLite: storage.SQLiteConfig{
				Path:            "folio.db",
				CleanupInterval: 10 * time.Minute,
			},
		},
		Generator: GeneratorConfig{
			Endpoint:   "https://generativelanguage.googleapis.com",
			Model:      "gemini-1.5-flash-latest",
			MaxRPS:     1,
			Burst:      2,
			Timeout:    2 * time.Minute,
			MaxRetries: 3,
		},
		Extractor: ExtractorConfig{
			Binary:  "pdftotext",
			Timeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that the config is valid.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative, got %s", c.Server.ShutdownTimeout)
	}
	if c.Quota.Limit <= 0 {
		return fmt.Errorf("quota.limit must be positive, got %d", c.Quota.Limit)
	}
	if c.Quota.Retention <= 0 {
		return fmt.Errorf("quota.retention must be positive, got %s", c.Quota.Retention)
	}

	switch c.Storage.Backend {
	case storage.BackendMemory:
		if c.Storage.Memory.CleanupInterval < 0 {
			return fmt.Errorf("storage.memory.cleanup_interval must not be negative, got %s", c.Storage.Memory.CleanupInterval)
		}
	case storage.BackendRedis:
		r := c.Storage.Redis
		if r.URL == "" && !r.Cluster {
			if r.Host == "" {
				return fmt.Errorf("storage.redis.host is required when no url is set")
			}
			if r.Port <= 0 {
				return fmt.Errorf("storage.redis.port must be positive, got %d", r.Port)
			}
		}
		if r.Cluster && len(r.ClusterNodes) == 0 {
			return fmt.Errorf("storage.redis.cluster_nodes is required when cluster=true")
		}
	case storage.BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required")
		}
		if c.Storage.SQLite.CleanupInterval < 0 {
			return fmt.Errorf("storage.sqlite.cleanup_interval must not be negative, got %s", c.Storage.SQLite.CleanupInterval)
		}
	default:
		return fmt.Errorf("unknown storage backend %q, must be one of: memory, redis, sqlite", c.Storage.Backend)
	}

	if c.Generator.MaxRPS < 0 {
		return fmt.Errorf("generator.max_rps must not be negative, got %v", c.Generator.MaxRPS)
	}
	if c.Generator.MaxRetries < 0 {
		return fmt.Errorf("generator.max_retries must not be negative, got %d", c.Generator.MaxRetries)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q, must be one of: json, console", c.Log.Format)
	}
	return nil
}

// LoadFile reads a YAML config file and merges it with defaults.
// Fields not specified in the file retain their default values.
func LoadFile(path string) (Config, error) {
	cfg, _, err := loadFile(path)
	return cfg, err
}

// loadFile is LoadFile that also reports whether the file named a storage
// backend itself.
func loadFile(path string) (cfg Config, backendSet bool, err error) {
	cfg = Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, false, fmt.Errorf("reading config file: %w", err)
	}

	cfg.Storage.Backend = ""
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		cfg.Storage.Backend = storage.BackendMemory
		return cfg, false, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = storage.BackendMemory
		return cfg, false, nil
	}
	return cfg, true, nil
}

// WriteExample writes an example config file to the given path.
func WriteExample(path string) error {
	example := `server:
  addr: ":8080"
  read_timeout: 30s
  write_timeout: 3m
  idle_timeout: 60s
  shutdown_timeout: 5s
  max_upload_bytes: 20971520

quota:
  limit: 3
  retention: 168h
  namespace: requests
  require_known_client: true

identity:
  reject_unknown_on_read: false

storage:
  backend: memory # memory, redis, sqlite
  memory:
    cleanup_interval: 1m
  redis:
    # url takes precedence, e.g. rediss://default:<token>@<host>.upstash.io:6379
    url: ""
    host: localhost
    port: 6379
    db: 0
    pool_size: 20
    max_retries: 3
    dial_timeout: 5s
  sqlite:
    path: folio.db
    cleanup_interval: 10m

generator:
  endpoint: https://generativelanguage.googleapis.com
  model: gemini-1.5-flash-latest
  api_key: "" # or FOLIO_GENERATOR_API_KEY / GOOGLE_GENERATIVE_AI_API_KEY
  prompt_file: ""
  max_rps: 1
  burst: 2
  timeout: 2m
  max_retries: 3

extractor:
  binary: pdftotext
  timeout: 30s

log:
  level: info
  format: json

record:
  file: ""

secrets_dir: ""
`
	return os.WriteFile(path, []byte(example), 0o644)
}
