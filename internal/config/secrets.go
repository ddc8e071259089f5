package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Secret file names read from the secrets directory.
const (
	SecretGeneratorAPIKey = "gemini-api-key"
	SecretRedisURL        = "redis-url"
	SecretRedisPassword   = "redis-password"
)

// LoadSecrets reads all files in dir and returns a map of filename to
// trimmed contents. A missing directory yields an empty map.
func LoadSecrets(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading secret %s: %w", name, err)
		}
		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// ApplySecrets fills credentials that are still empty from dir. Values
// already present in cfg win.
func ApplySecrets(cfg *Config, dir string) error {
	if dir == "" {
		return nil
	}
	secrets, err := LoadSecrets(dir)
	if err != nil {
		return err
	}

	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = secrets[name]
		}
	}
	fill(&cfg.Generator.APIKey, SecretGeneratorAPIKey)
	fill(&cfg.Storage.Redis.URL, SecretRedisURL)
	fill(&cfg.Storage.Redis.Password, SecretRedisPassword)
	return nil
}
