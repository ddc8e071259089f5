package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/SmitUplenchwar2687/Folio/internal/storage"
)

// EnvPrefix prefixes every Folio environment variable.
const EnvPrefix = "FOLIO"

// binding maps one config key to its environment variables. The canonical
// FOLIO_* name is derived from the key; legacy lists older names that are
// still honoured, in precedence order.
type binding struct {
	key    string
	legacy []string
	apply  func(c *Config, v *viper.Viper, key string)
}

var bindings = []binding{
	{key: "server.addr", apply: str(func(c *Config) *string { return &c.Server.Addr })},
	{key: "server.max_upload_bytes", apply: func(c *Config, v *viper.Viper, k string) { c.Server.MaxUploadBytes = v.GetInt64(k) }},
	{key: "quota.limit", apply: func(c *Config, v *viper.Viper, k string) { c.Quota.Limit = v.GetInt64(k) }},
	{key: "quota.retention", apply: func(c *Config, v *viper.Viper, k string) { c.Quota.Retention = v.GetDuration(k) }},
	{key: "quota.namespace", apply: str(func(c *Config) *string { return &c.Quota.Namespace })},
	{key: "quota.require_known_client", apply: func(c *Config, v *viper.Viper, k string) { c.Quota.RequireKnownClient = v.GetBool(k) }},
	{key: "identity.reject_unknown_on_read", apply: func(c *Config, v *viper.Viper, k string) { c.Identity.RejectUnknownOnRead = v.GetBool(k) }},
	{key: "storage.backend", apply: str(func(c *Config) *string { return &c.Storage.Backend })},
	{key: "storage.redis.url", legacy: []string{"REDIS_URL", "KV_URL"}, apply: str(func(c *Config) *string { return &c.Storage.Redis.URL })},
	{key: "storage.redis.host", apply: str(func(c *Config) *string { return &c.Storage.Redis.Host })},
	{key: "storage.redis.port", apply: func(c *Config, v *viper.Viper, k string) { c.Storage.Redis.Port = v.GetInt(k) }},
	{key: "storage.redis.password", apply: str(func(c *Config) *string { return &c.Storage.Redis.Password })},
	{key: "storage.redis.db", apply: func(c *Config, v *viper.Viper, k string) { c.Storage.Redis.DB = v.GetInt(k) }},
	{key: "storage.sqlite.path", apply: str(func(c *Config) *string { return &c.Storage.SQLite.Path })},
	{key: "generator.endpoint", apply: str(func(c *Config) *string { return &c.Generator.Endpoint })},
	{key: "generator.model", legacy: []string{"GEMINI_MODEL_TYPE"}, apply: str(func(c *Config) *string { return &c.Generator.Model })},
	{key: "generator.api_key", legacy: []string{"GOOGLE_GENERATIVE_AI_API_KEY"}, apply: str(func(c *Config) *string { return &c.Generator.APIKey })},
	{key: "generator.prompt_file", apply: str(func(c *Config) *string { return &c.Generator.PromptFile })},
	{key: "generator.max_rps", apply: func(c *Config, v *viper.Viper, k string) { c.Generator.MaxRPS = v.GetFloat64(k) }},
	{key: "extractor.binary", apply: str(func(c *Config) *string { return &c.Extractor.Binary })},
	{key: "log.level", apply: str(func(c *Config) *string { return &c.Log.Level })},
	{key: "log.format", apply: str(func(c *Config) *string { return &c.Log.Format })},
	{key: "record.file", apply: str(func(c *Config) *string { return &c.Record.File })},
	{key: "secrets_dir", apply: str(func(c *Config) *string { return &c.SecretsDir })},
}

func str(field func(*Config) *string) func(*Config, *viper.Viper, string) {
	return func(c *Config, v *viper.Viper, k string) {
		*field(c) = v.GetString(k)
	}
}

// EnvName returns the canonical environment variable for a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// NewViper returns a viper instance with every Folio environment variable
// bound, canonical names first.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	for _, b := range bindings {
		names := append([]string{EnvName(b.key)}, b.legacy...)
		if err := v.BindEnv(append([]string{b.key}, names...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", b.key, err)
		}
	}
	return v, nil
}

// ApplyEnv overlays every bound environment variable that is set onto cfg.
// A Redis URL from the environment selects the redis backend unless the
// backend itself was set explicitly.
func ApplyEnv(cfg *Config, v *viper.Viper) {
	applyEnv(cfg, v, false)
}

// applyEnv is ApplyEnv where fileBackend reports that a config file already
// chose the backend, which a bare Redis URL must not override.
func applyEnv(cfg *Config, v *viper.Viper, fileBackend bool) {
	for _, b := range bindings {
		if v.IsSet(b.key) {
			b.apply(cfg, v, b.key)
		}
	}
	if v.IsSet("storage.redis.url") && !v.IsSet("storage.backend") && !fileBackend {
		cfg.Storage.Backend = storage.BackendRedis
	}
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored and variables already set are never overwritten.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (if any), then the environment, then the secrets directory. The
// result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	fileBackend := false
	if path != "" {
		var err error
		cfg, fileBackend, err = loadFile(path)
		if err != nil {
			return cfg, err
		}
	}

	v, err := NewViper()
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg, v, fileBackend)

	if err := ApplySecrets(&cfg, cfg.SecretsDir); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
