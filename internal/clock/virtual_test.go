package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2025, 3, 14, 23, 59, 59, 0, time.UTC)

func TestVirtualClock_Now(t *testing.T) {
	vc := NewVirtualClock(epoch)
	if got := vc.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}
}

func TestVirtualClock_AdvanceCrossesMidnight(t *testing.T) {
	vc := NewVirtualClock(epoch)
	vc.Advance(2 * time.Second)

	want := time.Date(2025, 3, 15, 0, 0, 1, 0, time.UTC)
	if got := vc.Now(); !got.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestVirtualClock_AdvanceNegativePanics(t *testing.T) {
	vc := NewVirtualClock(epoch)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on negative advance")
		}
	}()
	vc.Advance(-1 * time.Second)
}

func TestVirtualClock_Set(t *testing.T) {
	vc := NewVirtualClock(epoch)
	target := epoch.Add(7 * 24 * time.Hour)
	vc.Set(target)

	if got := vc.Now(); !got.Equal(target) {
		t.Errorf("Now() after Set = %v, want %v", got, target)
	}
}

func TestVirtualClock_SetPastPanics(t *testing.T) {
	vc := NewVirtualClock(epoch)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic when setting time to the past")
		}
	}()
	vc.Set(epoch.Add(-time.Hour))
}

func TestVirtualClock_ConcurrentAccess(t *testing.T) {
	vc := NewVirtualClock(epoch)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			vc.Advance(time.Millisecond)
		}()
		go func() {
			defer wg.Done()
			_ = vc.Now()
		}()
	}
	wg.Wait()

	want := epoch.Add(50 * time.Millisecond)
	if got := vc.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
}

func TestFunc(t *testing.T) {
	c := Func(func() time.Time { return epoch })
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("Func.Now() = %v, want %v", got, epoch)
	}
}
