package quota

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Folio/pkg/clock"
	"github.com/SmitUplenchwar2687/Folio/pkg/storage"
)

func TestEmbeddedAccountant(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2025, 6, 1, 23, 59, 0, 0, time.UTC))
	store, err := storage.NewMemoryStore(&storage.MemoryConfig{Clock: vc})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	opts := DefaultOptions(vc)
	opts.Limit = 1
	acct, err := New(store, opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	req := httptest.NewRequest("POST", "/convert", nil)
	req.Header.Set("X-Forwarded-For", "192.0.2.1")
	client := ClientFromRequest(req)

	ctx := context.Background()
	if _, err := acct.RecordUse(ctx, client); err != nil {
		t.Fatalf("first RecordUse() error = %v", err)
	}
	if _, err := acct.RecordUse(ctx, client); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second RecordUse() error = %v, want ErrQuotaExceeded", err)
	}

	vc.Advance(2 * time.Minute)
	st, err := acct.RecordUse(ctx, client)
	if err != nil {
		t.Fatalf("RecordUse() after midnight error = %v", err)
	}
	if st.Count != 1 || st.Date != "2025-06-02" {
		t.Fatalf("state after midnight = %+v", st)
	}
}
