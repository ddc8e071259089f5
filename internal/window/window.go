// Package window builds daily quota keys.
//
// A window is one UTC calendar day. Requests at 23:59:59 and 00:00:01 UTC
// land in different windows and therefore different counters; there is no
// sliding or smoothing across the boundary.
package window

import (
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/clock"
	"github.com/SmitUplenchwar2687/Folio/internal/identity"
)

const (
	// DefaultNamespace prefixes every metered counter key.
	DefaultNamespace = "requests"

	// LocalhostKey is returned for loopback callers. The accountant never
	// sends it to the store.
	LocalhostKey = "localhost"

	dateLayout = "2006-01-02"
)

// DateKey formats t as its UTC calendar date, YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Today returns the current window label according to c.
func Today(c clock.Clock) string {
	return DateKey(c.Now())
}

// IsLoopback reports whether ip is one of the exempt loopback addresses.
func IsLoopback(ip string) bool {
	return ip == "127.0.0.1" || ip == "::1"
}

// Key composes the counter key in the default namespace.
func Key(ip, userID, date string) string {
	return compose(DefaultNamespace, ip, userID, date)
}

func compose(namespace, ip, userID, date string) string {
	if IsLoopback(ip) {
		return LocalhostKey
	}

	parts := make([]string, 0, 4)
	parts = append(parts, namespace, ip)
	if userID != "" {
		parts = append(parts, userID)
	}
	parts = append(parts, date)
	return strings.Join(parts, ":")
}

// Builder derives keys for resolved clients against a clock.
type Builder struct {
	Namespace string
	Clock     clock.Clock
}

// NewBuilder returns a Builder using the default namespace.
func NewBuilder(c clock.Clock) Builder {
	return Builder{Namespace: DefaultNamespace, Clock: c}
}

// Build returns the counter key for c and the window label it was built
// with. The clock is read once so the two always agree.
func (b Builder) Build(c identity.Client) (key, date string) {
	date = Today(b.Clock)
	ns := b.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	return compose(ns, c.IP, c.UserID, date), date
}
