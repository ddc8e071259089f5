package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
)

const defaultCleanupInterval = time.Minute

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	Clock           clock.Clock   `json:"-" yaml:"-"`
}

// MemoryStore keeps counters in a map. Its atomicity is process-local, so
// it only suits tests, development and single-instance deployments.
// Expiry is evaluated against the configured Clock, so virtual time can be
// used to age records out.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memItem
	clock clock.Clock

	cleanupInterval time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	closeOnce       sync.Once
}

type memItem struct {
	count     int64
	expiresAt time.Time // zero value means no expiration
}

func (it memItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && !now.Before(it.expiresAt)
}

// NewMemoryStore constructs a memory-backed Store and starts its cleanup
// loop. Close stops the loop.
func NewMemoryStore(cfg *MemoryConfig) (*MemoryStore, error) {
	settings := MemoryConfig{
		CleanupInterval: defaultCleanupInterval,
		Clock:           clock.NewRealClock(),
	}
	if cfg != nil {
		if cfg.CleanupInterval != 0 {
			settings.CleanupInterval = cfg.CleanupInterval
		}
		if cfg.Clock != nil {
			settings.Clock = cfg.Clock
		}
	}
	if settings.CleanupInterval <= 0 {
		return nil, fmt.Errorf("cleanup_interval must be positive, got %s", settings.CleanupInterval)
	}

	s := &MemoryStore{
		items:           make(map[string]memItem),
		clock:           settings.Clock,
		cleanupInterval: settings.CleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s, nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, unavailable("get", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(s.clock.Now()) {
		return 0, false, nil
	}
	return item.count, true, nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable("incr", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(s.clock.Now()) {
		// Matches INCR on a missing key: start from zero, no TTL.
		item = memItem{}
	}
	item.count++
	s.items[key] = item
	return item.count, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return unavailable("expire", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || item.expired(s.clock.Now()) {
		return nil
	}
	if ttl <= 0 {
		delete(s.items, key)
		return nil
	}
	item.expiresAt = s.clock.Now().Add(ttl)
	s.items[key] = item
	return nil
}

// TTL returns the remaining lifetime of key, or -1 if it has none and -2 if
// it does not exist, mirroring the Redis TTL command.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	item, ok := s.items[key]
	if !ok || item.expired(now) {
		return -2
	}
	if item.expiresAt.IsZero() {
		return -1
	}
	return item.expiresAt.Sub(now)
}

// Cleanup removes all expired items.
func (s *MemoryStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, item := range s.items {
		if item.expired(now) {
			delete(s.items, key)
		}
	}
}

// Len returns the number of items, including expired ones not yet cleaned up.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close stops the cleanup loop. It is idempotent.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
