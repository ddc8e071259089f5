package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/storage"
	"github.com/SmitUplenchwar2687/Folio/internal/window"
)

var epoch = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

// countingStore is an in-memory Store that records every call.
type countingStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	incrs   map[string]int
	expires map[string][]time.Duration
	gets    int

	getErr    error
	incrErr   error
	expireErr error
}

func newCountingStore() *countingStore {
	return &countingStore{
		counts:  make(map[string]int64),
		incrs:   make(map[string]int),
		expires: make(map[string][]time.Duration),
	}
}

func (s *countingStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return 0, false, s.getErr
	}
	n, ok := s.counts[key]
	return n, ok, nil
}

func (s *countingStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incrErr != nil {
		return 0, s.incrErr
	}
	s.incrs[key]++
	s.counts[key]++
	return s.counts[key], nil
}

func (s *countingStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expireErr != nil {
		return s.expireErr
	}
	s.expires[key] = append(s.expires[key], ttl)
	return nil
}

func (s *countingStore) Close() error { return nil }

func (s *countingStore) totalIncrs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.incrs {
		total += n
	}
	return total
}

func newTestAccountant(t *testing.T, st storage.Store, vc *clock.VirtualClock) *Accountant {
	t.Helper()
	acct, err := New(st, DefaultOptions(vc))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return acct
}

var remote = identity.Client{IP: "203.0.113.7"}

func TestNew_Validate(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := New(newCountingStore(), Options{Limit: -1}); err == nil {
		t.Fatal("expected error for negative limit")
	}
	if _, err := New(newCountingStore(), Options{RetentionTTL: -time.Second}); err == nil {
		t.Fatal("expected error for negative retention")
	}

	acct, err := New(newCountingStore(), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if acct.Limit() != DefaultLimit {
		t.Fatalf("Limit() = %d, want %d", acct.Limit(), DefaultLimit)
	}
}

func TestQueryState_FreshKeyReadsZero(t *testing.T) {
	st := newCountingStore()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))

	got, err := acct.QueryState(context.Background(), remote)
	if err != nil {
		t.Fatalf("QueryState() error = %v", err)
	}
	want := State{Count: 0, Limit: 3, Date: "2025-03-14"}
	if got != want {
		t.Fatalf("QueryState() = %+v, want %+v", got, want)
	}
	if st.totalIncrs() != 0 {
		t.Fatal("QueryState must not increment")
	}
}

func TestLoopbackBypass(t *testing.T) {
	for _, ip := range []string{"127.0.0.1", "::1"} {
		t.Run(ip, func(t *testing.T) {
			st := newCountingStore()
			acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))
			c := identity.Client{IP: ip, UserID: "u1"}

			q, err := acct.QueryState(context.Background(), c)
			if err != nil {
				t.Fatalf("QueryState() error = %v", err)
			}
			if q.Count != 0 {
				t.Fatalf("QueryState().Count = %d, want 0", q.Count)
			}

			for i := 0; i < 10; i++ {
				s, err := acct.RecordUse(context.Background(), c)
				if err != nil {
					t.Fatalf("RecordUse() #%d error = %v", i+1, err)
				}
				if s.Count != 0 {
					t.Fatalf("RecordUse().Count = %d, want 0", s.Count)
				}
			}
			if st.gets != 0 || st.totalIncrs() != 0 {
				t.Fatalf("store touched for loopback: gets=%d incrs=%d", st.gets, st.totalIncrs())
			}
		})
	}
}

func TestRecordUse_MonotonicIncrement(t *testing.T) {
	st := newCountingStore()
	acct, err := New(st, Options{
		Limit:              10,
		RequireKnownClient: true,
		Builder:            window.NewBuilder(clock.NewVirtualClock(epoch)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for want := int64(1); want <= 10; want++ {
		s, err := acct.RecordUse(context.Background(), remote)
		if err != nil {
			t.Fatalf("RecordUse() error = %v", err)
		}
		if s.Count != want {
			t.Fatalf("RecordUse().Count = %d, want %d", s.Count, want)
		}
	}
}

func TestRecordUse_EnforcesLimitWithoutIncrement(t *testing.T) {
	st := newCountingStore()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := acct.RecordUse(ctx, remote); err != nil {
			t.Fatalf("RecordUse() #%d error = %v", i+1, err)
		}
	}

	for i := 0; i < 3; i++ {
		s, err := acct.RecordUse(ctx, remote)
		if !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("RecordUse() error = %v, want ErrQuotaExceeded", err)
		}
		var ee *ExceededError
		if !errors.As(err, &ee) {
			t.Fatalf("error %T is not *ExceededError", err)
		}
		if ee.State.Count != 3 || s.Count != 3 {
			t.Fatalf("rejection reported count %d/%d, want 3", ee.State.Count, s.Count)
		}
	}
	if got := st.totalIncrs(); got != 3 {
		t.Fatalf("incr calls = %d, want 3", got)
	}
}

func TestRecordUse_ExpireOnlyOnFirstIncrement(t *testing.T) {
	st := newCountingStore()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))
	key, _ := acct.Key(remote)

	for i := 0; i < 3; i++ {
		if _, err := acct.RecordUse(context.Background(), remote); err != nil {
			t.Fatalf("RecordUse() error = %v", err)
		}
	}

	ttls := st.expires[key]
	if len(ttls) != 1 {
		t.Fatalf("expire calls = %d, want 1", len(ttls))
	}
	if ttls[0] != 604800*time.Second {
		t.Fatalf("ttl = %v, want 604800s", ttls[0])
	}
}

func TestRecordUse_Unidentified(t *testing.T) {
	st := newCountingStore()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))

	_, err := acct.RecordUse(context.Background(), identity.Client{IP: identity.Unknown})
	if !errors.Is(err, ErrUnidentified) {
		t.Fatalf("RecordUse() error = %v, want ErrUnidentified", err)
	}
	if st.totalIncrs() != 0 {
		t.Fatal("unidentified client must not be counted")
	}

	lenient, err := New(st, Options{Builder: window.NewBuilder(clock.NewVirtualClock(epoch))})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s, err := lenient.RecordUse(context.Background(), identity.Client{IP: identity.Unknown})
	if err != nil {
		t.Fatalf("lenient RecordUse() error = %v", err)
	}
	if s.Count != 1 {
		t.Fatalf("lenient RecordUse().Count = %d, want 1", s.Count)
	}
}

func TestRecordUse_StoreFailures(t *testing.T) {
	boom := fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
	tests := []struct {
		name  string
		setup func(*countingStore)
	}{
		{name: "get", setup: func(s *countingStore) { s.getErr = boom }},
		{name: "incr", setup: func(s *countingStore) { s.incrErr = boom }},
		{name: "expire", setup: func(s *countingStore) { s.expireErr = boom }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newCountingStore()
			tt.setup(st)
			acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))

			_, err := acct.RecordUse(context.Background(), remote)
			if !errors.Is(err, storage.ErrUnavailable) {
				t.Fatalf("RecordUse() error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestQueryState_StoreFailure(t *testing.T) {
	st := newCountingStore()
	st.getErr = fmt.Errorf("%w: timeout", storage.ErrUnavailable)
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))

	if _, err := acct.QueryState(context.Background(), remote); !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("QueryState() error = %v, want ErrUnavailable", err)
	}
}

func TestRecordUse_NewWindowAfterMidnight(t *testing.T) {
	st := newCountingStore()
	vc := clock.NewVirtualClock(time.Date(2025, 3, 14, 23, 59, 0, 0, time.UTC))
	acct := newTestAccountant(t, st, vc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := acct.RecordUse(ctx, remote); err != nil {
			t.Fatalf("RecordUse() error = %v", err)
		}
	}
	if _, err := acct.RecordUse(ctx, remote); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("RecordUse() error = %v, want ErrQuotaExceeded", err)
	}

	vc.Advance(2 * time.Minute)
	s, err := acct.RecordUse(ctx, remote)
	if err != nil {
		t.Fatalf("RecordUse() after midnight error = %v", err)
	}
	if s.Count != 1 || s.Date != "2025-03-15" {
		t.Fatalf("RecordUse() = %+v, want count 1 on 2025-03-15", s)
	}
}

func TestRecordUse_UserTokenPartitionsCounter(t *testing.T) {
	st := newCountingStore()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := acct.RecordUse(ctx, remote); err != nil {
			t.Fatalf("RecordUse() error = %v", err)
		}
	}
	s, err := acct.RecordUse(ctx, identity.Client{IP: remote.IP, UserID: "tok-1"})
	if err != nil {
		t.Fatalf("RecordUse() with user token error = %v", err)
	}
	if s.Count != 1 {
		t.Fatalf("Count = %d, want 1", s.Count)
	}
}

func TestRecordUse_ConcurrentCallersStopAfterExhaustion(t *testing.T) {
	st, err := storage.NewMemoryStore(&storage.MemoryConfig{
		CleanupInterval: time.Hour,
		Clock:           clock.NewVirtualClock(epoch),
	})
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	defer st.Close()
	acct := newTestAccountant(t, st, clock.NewVirtualClock(epoch))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = acct.RecordUse(ctx, remote)
		}()
	}
	wg.Wait()

	key, _ := acct.Key(remote)
	settled, _, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if settled < 3 {
		t.Fatalf("count = %d, want at least the limit", settled)
	}

	for i := 0; i < 5; i++ {
		if _, err := acct.RecordUse(ctx, remote); !errors.Is(err, ErrQuotaExceeded) {
			t.Fatalf("RecordUse() after exhaustion error = %v, want ErrQuotaExceeded", err)
		}
	}
	after, _, _ := st.Get(ctx, key)
	if after != settled {
		t.Fatalf("count moved from %d to %d after exhaustion", settled, after)
	}
}

func TestOnEvent(t *testing.T) {
	var got []Event
	opts := DefaultOptions(clock.NewVirtualClock(epoch))
	opts.Limit = 1
	opts.OnEvent = Fanout(nil, func(ev Event) { got = append(got, ev) })
	acct, err := New(newCountingStore(), opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	_, _ = acct.QueryState(ctx, remote)
	_, _ = acct.RecordUse(ctx, remote)
	_, _ = acct.RecordUse(ctx, remote)
	_, _ = acct.RecordUse(ctx, identity.Client{IP: "127.0.0.1"})
	_, _ = acct.RecordUse(ctx, identity.Client{IP: identity.Unknown})

	want := []Outcome{OutcomeQueried, OutcomeAllowed, OutcomeDenied, OutcomeExempt, OutcomeUnidentified}
	if len(got) != len(want) {
		t.Fatalf("events = %d, want %d", len(got), len(want))
	}
	for i, o := range want {
		if got[i].Outcome != o {
			t.Fatalf("event %d outcome = %q, want %q", i, got[i].Outcome, o)
		}
		if got[i].Limit != 1 {
			t.Fatalf("event %d limit = %d, want 1", i, got[i].Limit)
		}
	}
	if got[1].Key != "requests:203.0.113.7:2025-03-14" {
		t.Fatalf("event key = %q", got[1].Key)
	}
}

func TestState_Remaining(t *testing.T) {
	if got := (State{Count: 1, Limit: 3}).Remaining(); got != 2 {
		t.Fatalf("Remaining() = %d, want 2", got)
	}
	if got := (State{Count: 5, Limit: 3}).Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}
