package replay

import (
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/Folio/internal/recorder"
)

func TestFilter_Match(t *testing.T) {
	ev := recorder.UsageEvent{Timestamp: epoch, IP: "192.0.2.1", UserID: "u1"}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{name: "empty", filter: Filter{}, want: true},
		{name: "ip match", filter: Filter{IPs: []string{"192.0.2.1"}}, want: true},
		{name: "ip miss", filter: Filter{IPs: []string{"192.0.2.2"}}, want: false},
		{name: "user match", filter: Filter{UserIDs: []string{"u1"}}, want: true},
		{name: "user miss", filter: Filter{UserIDs: []string{"u2"}}, want: false},
		{name: "after", filter: Filter{After: epoch.Add(-time.Second)}, want: true},
		{name: "after excludes equal", filter: Filter{After: epoch}, want: false},
		{name: "before", filter: Filter{Before: epoch.Add(time.Second)}, want: true},
		{name: "before excludes equal", filter: Filter{Before: epoch}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(ev); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
