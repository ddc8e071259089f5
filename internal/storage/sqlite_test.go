package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
)

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "quota.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := s.Incr(ctx, "requests:1.2.3.4:2025-03-14"); err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s, err = NewSQLiteStore(&SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	n, found, err := s.Get(ctx, "requests:1.2.3.4:2025-03-14")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || n != 2 {
		t.Fatalf("Get() = (%d, %v), want (2, true)", n, found)
	}
}

func TestSQLiteStore_Purge(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC))
	s, err := NewSQLiteStore(&SQLiteConfig{Path: MemoryPath, Clock: vc})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"old", "fresh", "forever"} {
		if _, err := s.Incr(ctx, key); err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
	}
	_ = s.Expire(ctx, "old", time.Hour)
	_ = s.Expire(ctx, "fresh", 48*time.Hour)

	vc.Advance(2 * time.Hour)
	removed, err := s.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if removed != 1 {
		t.Fatalf("Purge() removed %d rows, want 1", removed)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(&SQLiteConfig{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStore_CleanupLoopRemovesExpiredRows(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s, err := NewSQLiteStore(&SQLiteConfig{Path: MemoryPath, Clock: vc, CleanupInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	// One dated key per day, each retained for a week, like the accountant.
	for day := 0; day < 30; day++ {
		key := "requests:203.0.113.7:" + vc.Now().Format("2006-01-02")
		if _, err := s.Incr(ctx, key); err != nil {
			t.Fatalf("Incr() error = %v", err)
		}
		if err := s.Expire(ctx, key, 7*24*time.Hour); err != nil {
			t.Fatalf("Expire() error = %v", err)
		}
		vc.Advance(24 * time.Hour)
	}

	// The clock now sits at day 30; only days 24..29 are still retained.
	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := s.Len(ctx)
		if err != nil {
			t.Fatalf("Len() error = %v", err)
		}
		if n == 6 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("rows after 30 days with 7-day retention = %d, want 6", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSQLiteStore_NegativeCleanupInterval(t *testing.T) {
	if _, err := NewSQLiteStore(&SQLiteConfig{Path: MemoryPath, CleanupInterval: -time.Second}); err == nil {
		t.Fatal("expected error for negative cleanup interval")
	}
}
