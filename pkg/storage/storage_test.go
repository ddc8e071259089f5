package storage

import (
	"context"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Folio/pkg/clock"
)

func TestOpenMemory(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	s, err := Open(Config{Backend: BackendMemory}, vc)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if n, err := s.Incr(ctx, "k"); err != nil || n != 1 {
		t.Fatalf("Incr() = %d, %v; want 1, nil", n, err)
	}
	if err := s.Expire(ctx, "k", time.Second); err != nil {
		t.Fatal(err)
	}
	vc.Advance(2 * time.Second)
	if _, ok, err := s.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("Get() after expiry = ok %v, err %v; want missing", ok, err)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	if _, err := Open(Config{Backend: "etcd"}, clock.NewRealClock()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
