package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		// Ticker fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Now(t *testing.T) {
	fixedTime := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(fixedTime)
	now := clock.Now()

	if !now.Equal(fixedTime) {
		t.Errorf("got %v, want %v", now, fixedTime)
	}
}

func TestMockClock_Set(t *testing.T) {
	clock := NewMockClock(time.Time{})
	newTime := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	clock.Set(newTime)

	if !clock.Now().Equal(newTime) {
		t.Errorf("got %v, want %v", clock.Now(), newTime)
	}
}

func TestMockClock_SleepAdvancesTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Sleep(time.Second)
	clock.Sleep(500 * time.Millisecond)

	want := start.Add(1500 * time.Millisecond)
	if !clock.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", clock.Now(), want)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("got %d sleeps, want 2", len(sleeps))
	}
	if sleeps[0] != time.Second || sleeps[1] != 500*time.Millisecond {
		t.Errorf("recorded sleeps %v, want [1s 500ms]", sleeps)
	}
}

func TestMockClock_Since(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Sleep(2 * time.Second)

	if got := clock.Since(start); got != 2*time.Second {
		t.Errorf("got %v, want 2s", got)
	}
}

func TestMockClock_GateSleeps(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	gate := clock.GateSleeps()

	done := make(chan struct{})
	go func() {
		clock.Sleep(time.Second)
		clock.Sleep(2 * time.Second)
		close(done)
	}()

	if d := gate.Wait(); d != time.Second {
		t.Errorf("first gated sleep = %v, want 1s", d)
	}
	select {
	case <-done:
		t.Fatal("goroutine finished while held at the gate")
	case <-time.After(10 * time.Millisecond):
		// Still held, as expected
	}

	gate.Release()
	if d := gate.Wait(); d != 2*time.Second {
		t.Errorf("second gated sleep = %v, want 2s", d)
	}
	gate.Release()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish after releases")
	}
}

func TestSleepGate_Open(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	gate := clock.GateSleeps()
	gate.Open()

	done := make(chan struct{})
	go func() {
		clock.Sleep(time.Second)
		clock.Sleep(time.Second)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleeps blocked after gate was opened")
	}
}

func TestMockClock_Ticker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Minute)

	// Ticker should not fire yet
	select {
	case <-ticker.C():
		t.Error("ticker fired too early")
	default:
		// Expected
	}

	clock.Advance(time.Minute)
	select {
	case tick := <-ticker.C():
		if !tick.Equal(start.Add(time.Minute)) {
			t.Errorf("tick at %v, want %v", tick, start.Add(time.Minute))
		}
	default:
		t.Fatal("ticker did not fire after Advance")
	}
}

func TestMockTicker_Stop(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Minute)
	ticker.Stop()

	clock.Advance(2 * time.Minute)
	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
		// Expected
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ticker := clock.NewTicker(time.Hour).(*MockTicker)

	now := time.Date(2026, 1, 1, 0, 30, 0, 0, time.UTC)
	ticker.Trigger(now)

	select {
	case tick := <-ticker.C():
		if !tick.Equal(now) {
			t.Errorf("tick at %v, want %v", tick, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}
}
