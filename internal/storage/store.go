// Package storage adapts external atomic counter stores for quota
// accounting. Every backend offers the same three operations, GET, INCR and
// EXPIRE, keyed by string with integer values.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// ErrUnavailable marks every failure that comes from the underlying store
// (network, auth, timeout, corrupt value). Callers test for it with
// errors.Is and must not retry inside the request.
var ErrUnavailable = errors.New("quota store unavailable")

// Store is the counter store used by the accountant.
// Implementations must be safe for concurrent use, and Incr must be atomic
// across every process sharing the backend.
type Store interface {
	// Get returns the counter for key. found is false when no record exists
	// or the record has expired.
	Get(ctx context.Context, key string) (count int64, found bool, err error)

	// Incr atomically adds one to key, creating it at 1 if absent, and
	// returns the post-increment value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets or refreshes the time-to-live of key. Idempotent.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Close releases backend resources. It is idempotent.
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend string       `json:"backend" yaml:"backend"`
	Memory  MemoryConfig `json:"memory" yaml:"memory"`
	Redis   RedisConfig  `json:"redis" yaml:"redis"`
	SQLite  SQLiteConfig `json:"sqlite" yaml:"sqlite"`
}

// Open constructs the backend named by cfg.Backend.
func Open(cfg Config, clk clock.Clock) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		mc := cfg.Memory
		if mc.Clock == nil {
			mc.Clock = clk
		}
		return NewMemoryStore(&mc)
	case BackendRedis:
		return NewRedisStore(&cfg.Redis)
	case BackendSQLite:
		sc := cfg.SQLite
		if sc.Clock == nil {
			sc.Clock = clk
		}
		return NewSQLiteStore(&sc)
	default:
		return nil, fmt.Errorf("unknown storage backend %q, must be one of: memory, redis, sqlite", cfg.Backend)
	}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %q: %v", ErrUnavailable, op, key, err)
}
