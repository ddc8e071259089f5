package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
)

// MemoryPath opens a private in-process SQLite database.
const MemoryPath = ":memory:"

const defaultSQLiteCleanupInterval = 10 * time.Minute

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
	// CleanupInterval is how often expired rows are purged.
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	Clock           clock.Clock   `json:"-" yaml:"-"`
}

// SQLiteStore persists counters in a single SQLite table. Increments are a
// single upsert statement, so they stay atomic across processes sharing
// the file. Expiry is stored as unix nanoseconds; reads ignore expired rows
// and a background loop deletes them.
type SQLiteStore struct {
	db              *sql.DB
	clock           clock.Clock
	cleanupInterval time.Duration

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens or creates the database at cfg.Path.
func NewSQLiteStore(cfg *SQLiteConfig) (*SQLiteStore, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}
	interval := cfg.CleanupInterval
	if interval == 0 {
		interval = defaultSQLiteCleanupInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("cleanup_interval must be positive, got %s", interval)
	}

	dsn := cfg.Path + "?_busy_timeout=5000"
	if cfg.Path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps :memory: databases shared and avoids writer
	// contention inside a process.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:              db,
		clock:           clk,
		cleanupInterval: interval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	go s.cleanupLoop()
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS counters (
		key TEXT PRIMARY KEY,
		count INTEGER NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	)`)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (int64, bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM counters WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
		key, s.now()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get", key, err)
	}
	return count, true, nil
}

func (s *SQLiteStore) Incr(ctx context.Context, key string) (int64, error) {
	now := s.now()
	var count int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (key, count, expires_at) VALUES (?, 1, 0)
		ON CONFLICT(key) DO UPDATE SET
			count = CASE WHEN expires_at != 0 AND expires_at <= ? THEN 1 ELSE count + 1 END,
			expires_at = CASE WHEN expires_at != 0 AND expires_at <= ? THEN 0 ELSE expires_at END
		RETURNING count`,
		key, now, now).Scan(&count)
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return count, nil
}

func (s *SQLiteStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	now := s.now()
	var err error
	if ttl <= 0 {
		_, err = s.db.ExecContext(ctx, `DELETE FROM counters WHERE key = ?`, key)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE counters SET expires_at = ? WHERE key = ? AND (expires_at = 0 OR expires_at > ?)`,
			now+ttl.Nanoseconds(), key, now)
	}
	if err != nil {
		return unavailable("expire", key, err)
	}
	return nil
}

// Purge deletes expired rows and reports how many were removed.
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM counters WHERE expires_at != 0 AND expires_at <= ?`, s.now())
	if err != nil {
		return 0, unavailable("purge", "*", err)
	}
	return res.RowsAffected()
}

// Len returns the number of rows, including expired ones not yet purged.
func (s *SQLiteStore) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM counters`).Scan(&n); err != nil {
		return 0, unavailable("len", "*", err)
	}
	return n, nil
}

// Close stops the purge loop and releases the database connection. It is
// idempotent.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// cleanupLoop purges expired rows every cleanupInterval. Dated keys are never
// touched again after their day, so lazy expiry alone would keep them forever.
func (s *SQLiteStore) cleanupLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			// A failed purge is retried on the next tick.
			_, _ = s.Purge(context.Background())
		}
	}
}

func (s *SQLiteStore) now() int64 {
	return s.clock.Now().UnixNano()
}
