// Package storage exposes Folio's counter stores for embedding.
package storage

import (
	internalstorage "github.com/SmitUplenchwar2687/Folio/internal/storage"
	"github.com/SmitUplenchwar2687/Folio/pkg/clock"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory = internalstorage.BackendMemory
	BackendRedis  = internalstorage.BackendRedis
	BackendSQLite = internalstorage.BackendSQLite
)

// ErrUnavailable wraps every backend failure.
var ErrUnavailable = internalstorage.ErrUnavailable

// Store is a keyed counter store with per-key expiry.
type Store = internalstorage.Store

// Config selects and configures a backend.
type Config = internalstorage.Config

type (
	MemoryConfig = internalstorage.MemoryConfig
	RedisConfig  = internalstorage.RedisConfig
	SQLiteConfig = internalstorage.SQLiteConfig
)

type (
	MemoryStore = internalstorage.MemoryStore
	RedisStore  = internalstorage.RedisStore
	SQLiteStore = internalstorage.SQLiteStore
)

// Open constructs the backend named by cfg.Backend.
func Open(cfg Config, c clock.Clock) (Store, error) {
	return internalstorage.Open(cfg, c)
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(cfg *MemoryConfig) (*MemoryStore, error) {
	return internalstorage.NewMemoryStore(cfg)
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	return internalstorage.NewRedisStore(cfg)
}

// NewSQLiteStore opens or creates a SQLite database.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	return internalstorage.NewSQLiteStore(cfg)
}
