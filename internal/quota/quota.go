// Package quota implements Folio's per-client daily request accounting.
//
// An Accountant reads and advances one counter per (ip, user token, UTC day)
// in a shared storage.Store. The limit is soft: the check and the increment
// are two store calls, so concurrent callers from one identity can overshoot
// the limit slightly. Once any caller observes count >= limit, every later
// call in the same window is rejected without touching the counter.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/storage"
	"github.com/SmitUplenchwar2687/Folio/internal/window"
)

const (
	// DefaultLimit is the number of recorded uses allowed per window.
	DefaultLimit = 3

	// DefaultRetentionTTL bounds how long a counter lives in the store. It
	// is housekeeping only and has nothing to do with the daily window.
	DefaultRetentionTTL = 7 * 24 * time.Hour
)

var (
	// ErrUnidentified is returned by RecordUse when the client could not be
	// identified and the accountant requires a known client.
	ErrUnidentified = errors.New("unable to identify client")

	// ErrQuotaExceeded matches every *ExceededError.
	ErrQuotaExceeded = errors.New("rate limit exceeded")
)

// State is a point-in-time view of one client's usage in the current window.
type State struct {
	Count int64  `json:"count"`
	Limit int64  `json:"limit"`
	Date  string `json:"date"`
}

// Remaining returns how many uses are left, never negative.
func (s State) Remaining() int64 {
	if s.Count >= s.Limit {
		return 0
	}
	return s.Limit - s.Count
}

// Exhausted reports whether the next RecordUse would be rejected.
func (s State) Exhausted() bool {
	return s.Count >= s.Limit
}

// ExceededError carries the usage observed when a use was rejected.
type ExceededError struct {
	State State
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d/%d on %s", e.State.Count, e.State.Limit, e.State.Date)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Options configures an Accountant.
type Options struct {
	Limit              int64
	RetentionTTL       time.Duration
	RequireKnownClient bool
	Builder            window.Builder

	// OnEvent, when set, is called synchronously after every QueryState and
	// RecordUse. It must not block.
	OnEvent func(Event)
}

// DefaultOptions returns the production defaults against c.
func DefaultOptions(c clock.Clock) Options {
	return Options{
		Limit:              DefaultLimit,
		RetentionTTL:       DefaultRetentionTTL,
		RequireKnownClient: true,
		Builder:            window.NewBuilder(c),
	}
}

// Accountant gates and records client usage. It holds no per-client state
// of its own and is safe for concurrent use.
type Accountant struct {
	store   storage.Store
	limit   int64
	ttl     time.Duration
	strict  bool
	builder window.Builder
	onEvent func(Event)
}

// New creates an Accountant over store.
func New(store storage.Store, opts Options) (*Accountant, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", opts.Limit)
	}
	if opts.RetentionTTL < 0 {
		return nil, fmt.Errorf("retention ttl must not be negative, got %s", opts.RetentionTTL)
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultLimit
	}
	if opts.RetentionTTL == 0 {
		opts.RetentionTTL = DefaultRetentionTTL
	}
	if opts.Builder.Clock == nil {
		opts.Builder.Clock = clock.NewRealClock()
	}
	if opts.Builder.Namespace == "" {
		opts.Builder.Namespace = window.DefaultNamespace
	}

	return &Accountant{
		store:   store,
		limit:   opts.Limit,
		ttl:     opts.RetentionTTL,
		strict:  opts.RequireKnownClient,
		builder: opts.Builder,
		onEvent: opts.OnEvent,
	}, nil
}

// Limit returns the configured per-window limit.
func (a *Accountant) Limit() int64 { return a.limit }

// Key returns the counter key and window label for c at the current time.
func (a *Accountant) Key(c identity.Client) (key, date string) {
	return a.builder.Build(c)
}

// QueryState reports c's usage in the current window without mutating
// anything. Loopback clients always read as zero and never reach the store.
func (a *Accountant) QueryState(ctx context.Context, c identity.Client) (State, error) {
	key, date := a.builder.Build(c)
	st, err := a.read(ctx, key, date)

	ev := Event{Op: OpQuery, Key: key, Client: c, State: st, Err: err, Outcome: OutcomeQueried}
	switch {
	case err != nil:
		ev.Outcome = OutcomeError
	case key == window.LocalhostKey:
		ev.Outcome = OutcomeExempt
	}
	a.emit(ev)

	if err != nil {
		return State{}, fmt.Errorf("reading usage for %q: %w", key, err)
	}
	return st, nil
}

// RecordUse records one use for c in the current window.
//
// It returns ErrUnidentified for an unknown client when the accountant
// requires one, an *ExceededError without incrementing when the window is
// already exhausted, and a storage.ErrUnavailable-wrapping error when the
// store fails. Loopback clients are never counted.
func (a *Accountant) RecordUse(ctx context.Context, c identity.Client) (State, error) {
	key, date := a.builder.Build(c)
	ev := Event{Op: OpRecord, Key: key, Client: c}

	st, err := a.recordUse(ctx, c, key, date)
	ev.State = st
	ev.Err = err
	switch {
	case err == nil && key == window.LocalhostKey:
		ev.Outcome = OutcomeExempt
	case err == nil:
		ev.Outcome = OutcomeAllowed
	case errors.Is(err, ErrUnidentified):
		ev.Outcome = OutcomeUnidentified
	case errors.Is(err, ErrQuotaExceeded):
		ev.Outcome = OutcomeDenied
	default:
		ev.Outcome = OutcomeError
	}
	a.emit(ev)

	return st, err
}

func (a *Accountant) recordUse(ctx context.Context, c identity.Client, key, date string) (State, error) {
	if a.strict && !c.Known() {
		return State{Limit: a.limit, Date: date}, ErrUnidentified
	}

	current, err := a.read(ctx, key, date)
	if err != nil {
		return State{Limit: a.limit, Date: date}, fmt.Errorf("reading usage for %q: %w", key, err)
	}
	if current.Exhausted() {
		return current, &ExceededError{State: current}
	}

	if key == window.LocalhostKey {
		return current, nil
	}

	n, err := a.store.Incr(ctx, key)
	if err != nil {
		return State{Limit: a.limit, Date: date}, fmt.Errorf("recording use for %q: %w", key, err)
	}
	st := State{Count: n, Limit: a.limit, Date: date}

	if n == 1 {
		if err := a.store.Expire(ctx, key, a.ttl); err != nil {
			return st, fmt.Errorf("setting retention on %q: %w", key, err)
		}
	}
	return st, nil
}

func (a *Accountant) read(ctx context.Context, key, date string) (State, error) {
	st := State{Limit: a.limit, Date: date}
	if key == window.LocalhostKey {
		return st, nil
	}

	n, _, err := a.store.Get(ctx, key)
	if err != nil {
		return st, err
	}
	st.Count = n
	return st, nil
}

func (a *Accountant) emit(ev Event) {
	if a.onEvent != nil {
		ev.Limit = a.limit
		a.onEvent(ev)
	}
}
