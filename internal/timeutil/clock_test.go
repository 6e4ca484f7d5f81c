package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(200 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixed := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixed)

	if got := clock.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
	clock.Advance(50 * time.Millisecond)
	if got := clock.Now(); !got.Equal(fixed.Add(50 * time.Millisecond)) {
		t.Errorf("Now() after Advance = %v", got)
	}
}

func TestMockTicker_FiresOnDeadline(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(50 * time.Millisecond)

	clock.Advance(49 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its period elapsed")
	default:
	}

	clock.Advance(time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire at its deadline")
	}
}

func TestMockTicker_StopSuppressesTicks(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Millisecond).(*MockTicker)
	ticker.Stop()

	clock.Advance(time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
	if !ticker.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestMockClock_TickerCreatedSignal(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	clock.NewTicker(time.Second)

	select {
	case <-clock.TickerCreated():
	default:
		t.Fatal("TickerCreated not signalled")
	}
}
