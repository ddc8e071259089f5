package replay

import (
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/recorder"
)

// Filter selects which recorded events are replayed.
type Filter struct {
	IPs     []string  // Only include these client IPs (empty = all)
	UserIDs []string  // Only include these user tokens (empty = all)
	After   time.Time // Only include events after this time (zero = no limit)
	Before  time.Time // Only include events before this time (zero = no limit)
}

// Match returns true if the event passes the filter.
func (f *Filter) Match(ev recorder.UsageEvent) bool {
	if len(f.IPs) > 0 && !contains(f.IPs, ev.IP) {
		return false
	}
	if len(f.UserIDs) > 0 && !contains(f.UserIDs, ev.UserID) {
		return false
	}
	if !f.After.IsZero() && !ev.Timestamp.After(f.After) {
		return false
	}
	if !f.Before.IsZero() && !ev.Timestamp.Before(f.Before) {
		return false
	}
	return true
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
