package recorder

import (
	"sort"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

// UsageEvent is one recorded accountant decision.
type UsageEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Key       string    `json:"key"`
	IP        string    `json:"ip,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	Op        string    `json:"op"`      // "query" or "record"
	Outcome   string    `json:"outcome"` // quota.Outcome
	Count     int64     `json:"count"`
	Limit     int64     `json:"limit"`
	Date      string    `json:"date"`
	Error     string    `json:"error,omitempty"`
}

// Hook returns an accountant event hook that records into r, stamping each
// event with c. Successful reads change nothing and are not kept; only
// recorded uses and failed reads are.
func (r *Recorder) Hook(c clock.Clock) func(quota.Event) {
	return func(ev quota.Event) {
		if ev.Op == quota.OpQuery && ev.Err == nil {
			return
		}
		ue := UsageEvent{
			Timestamp: c.Now(),
			Key:       ev.Key,
			IP:        ev.Client.IP,
			UserID:    ev.Client.UserID,
			Op:        string(ev.Op),
			Outcome:   string(ev.Outcome),
			Count:     ev.State.Count,
			Limit:     ev.Limit,
			Date:      ev.State.Date,
		}
		if ev.Err != nil {
			ue.Error = ev.Err.Error()
		}
		_ = r.Record(ue)
	}
}

// KeySummary aggregates recorded events for one counter key.
type KeySummary struct {
	Key       string `json:"key"`
	Date      string `json:"date"`
	Allowed   int    `json:"allowed"`
	Denied    int    `json:"denied"`
	Errors    int    `json:"errors"`
	LastCount int64  `json:"last_count"`
}

// Summarize groups record events by key. Queries only contribute errors.
// The result is sorted by key.
func Summarize(events []UsageEvent) []KeySummary {
	byKey := make(map[string]*KeySummary)
	for _, ev := range events {
		s, ok := byKey[ev.Key]
		if !ok {
			s = &KeySummary{Key: ev.Key, Date: ev.Date}
			byKey[ev.Key] = s
		}
		switch quota.Outcome(ev.Outcome) {
		case quota.OutcomeAllowed:
			s.Allowed++
			s.LastCount = ev.Count
		case quota.OutcomeDenied:
			s.Denied++
			s.LastCount = ev.Count
		case quota.OutcomeError:
			s.Errors++
		}
	}

	out := make([]KeySummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
