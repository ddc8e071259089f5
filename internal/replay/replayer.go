// Package replay re-runs recorded usage through an accountant on a virtual
// clock, so a different limit can be evaluated against real traffic.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
	"github.com/SmitUplenchwar2687/Folio/internal/recorder"
)

// Accountant records uses. *quota.Accountant satisfies it.
type Accountant interface {
	RecordUse(ctx context.Context, c identity.Client) (quota.State, error)
}

// Replayer replays recorded use attempts at a configurable speed.
type Replayer struct {
	events []recorder.UsageEvent
	acct   Accountant
	clock  *clock.VirtualClock
	filter Filter
	speed  float64 // 1.0 = real-time, 10.0 = 10x, 0 = instant
}

// Result captures the outcome of replaying a single event.
type Result struct {
	Event   recorder.UsageEvent `json:"event"`
	State   quota.State         `json:"state"`
	Allowed bool                `json:"allowed"`
	// Changed is set when the replayed decision differs from the recorded one.
	Changed bool      `json:"changed"`
	Time    time.Time `json:"time"` // virtual time when the decision was made
}

// Summary aggregates replay statistics.
type Summary struct {
	TotalEvents  int                   `json:"total_events"`
	Attempts     int                   `json:"attempts"`
	Replayed     int                   `json:"replayed"`
	Allowed      int                   `json:"allowed"`
	Denied       int                   `json:"denied"`
	Changed      int                   `json:"changed"`
	Duration     time.Duration         `json:"duration"`      // virtual time span
	WallDuration time.Duration         `json:"wall_duration"` // actual wall clock time
	PerClient    map[string]KeySummary `json:"per_client"`
}

// KeySummary has per-client stats.
type KeySummary struct {
	Allowed int `json:"allowed"`
	Denied  int `json:"denied"`
}

// New creates a new replayer. acct must read time from vc.
func New(acct Accountant, vc *clock.VirtualClock, speed float64, filter Filter) *Replayer {
	if speed < 0 {
		speed = 0
	}
	return &Replayer{
		acct:   acct,
		clock:  vc,
		speed:  speed,
		filter: filter,
	}
}

// Load reads usage events from a JSON reader.
func (r *Replayer) Load(reader io.Reader) error {
	events, err := recorder.LoadJSON(reader)
	if err != nil {
		return fmt.Errorf("loading events: %w", err)
	}
	r.events = events
	return nil
}

// LoadEvents sets the events directly.
func (r *Replayer) LoadEvents(events []recorder.UsageEvent) {
	r.events = make([]recorder.UsageEvent, len(events))
	copy(r.events, events)
}

// isAttempt reports whether ev was a counted use attempt. Queries, loopback
// uses, unidentified callers and store failures never reached the limit.
func isAttempt(ev recorder.UsageEvent) bool {
	if ev.Op != string(quota.OpRecord) {
		return false
	}
	return ev.Outcome == string(quota.OutcomeAllowed) || ev.Outcome == string(quota.OutcomeDenied)
}

// Run replays every matching use attempt through the accountant in
// timestamp order. The callback is called for each replayed event.
func (r *Replayer) Run(ctx context.Context, cb func(Result)) (*Summary, error) {
	if len(r.events) == 0 {
		return nil, fmt.Errorf("no events loaded")
	}

	sorted := make([]recorder.UsageEvent, len(r.events))
	copy(sorted, r.events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	summary := &Summary{
		TotalEvents: len(sorted),
		PerClient:   make(map[string]KeySummary),
	}

	var attempts []recorder.UsageEvent
	for _, ev := range sorted {
		if isAttempt(ev) && r.filter.Match(ev) {
			attempts = append(attempts, ev)
		}
	}
	summary.Attempts = len(attempts)
	if len(attempts) == 0 {
		return summary, nil
	}

	wallStart := time.Now()
	r.clock.Set(attempts[0].Timestamp)

	for i, ev := range attempts {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		if i > 0 {
			gap := ev.Timestamp.Sub(attempts[i-1].Timestamp)
			if gap > 0 {
				if r.speed > 0 {
					scaledGap := time.Duration(float64(gap) / r.speed)
					if scaledGap > time.Millisecond {
						select {
						case <-ctx.Done():
							return summary, ctx.Err()
						case <-time.After(scaledGap):
						}
					}
				}
				r.clock.Advance(gap)
			}
		}

		client := identity.Client{IP: ev.IP, UserID: ev.UserID}
		st, err := r.acct.RecordUse(ctx, client)
		var exceeded *quota.ExceededError
		switch {
		case errors.As(err, &exceeded):
			st = exceeded.State
		case err != nil:
			return summary, fmt.Errorf("replaying event %d: %w", i, err)
		}

		allowed := err == nil
		res := Result{
			Event:   ev,
			State:   st,
			Allowed: allowed,
			Changed: allowed != (ev.Outcome == string(quota.OutcomeAllowed)),
			Time:    r.clock.Now(),
		}

		summary.Replayed++
		if res.Changed {
			summary.Changed++
		}
		name := clientName(client)
		ks := summary.PerClient[name]
		if allowed {
			summary.Allowed++
			ks.Allowed++
		} else {
			summary.Denied++
			ks.Denied++
		}
		summary.PerClient[name] = ks

		if cb != nil {
			cb(res)
		}
	}

	summary.Duration = attempts[len(attempts)-1].Timestamp.Sub(attempts[0].Timestamp)
	summary.WallDuration = time.Since(wallStart)

	return summary, nil
}

func clientName(c identity.Client) string {
	if c.HasUserID() {
		return c.IP + "/" + c.UserID
	}
	return c.IP
}
