package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	if got.Before(before) {
		t.Errorf("RealClock.Now() = %v, before %v", got, before)
	}
}

func TestRealClock_After(t *testing.T) {
	c := RealClock{}
	select {
	case <-c.After(5 * time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("RealClock.After did not fire")
	}
}

func TestMockClock_SleepDoesNotAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Sleep(50 * time.Millisecond)

	if !c.Now().Equal(start) {
		t.Errorf("expected clock unchanged, got %v", c.Now())
	}
	sleeps := c.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 50*time.Millisecond {
		t.Errorf("unexpected sleeps: %v", sleeps)
	}
}

func TestMockClock_AutoAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewAutoAdvanceClock(start)

	c.Sleep(30 * time.Millisecond)
	select {
	case got := <-c.After(50 * time.Millisecond):
		if want := start.Add(80 * time.Millisecond); !got.Equal(want) {
			t.Errorf("After delivered %v, want %v", got, want)
		}
	default:
		t.Fatal("After should fire immediately in auto-advance mode")
	}

	if got := c.Since(start); got != 80*time.Millisecond {
		t.Errorf("Since(start) = %v, want 80ms", got)
	}
}

func TestMockClock_AfterFiresOnAdvance(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ch := c.After(100 * time.Millisecond)

	c.Advance(99 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("fired too early")
	default:
	}

	c.Advance(time.Millisecond)
	select {
	case <-ch:
	default:
		t.Fatal("expected After to fire at deadline")
	}
}

func TestMockTicker(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	tk := c.NewTicker(2 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("expected tick")
	}

	tk.Stop()
	c.Advance(2 * time.Second)
	select {
	case <-tk.C():
		t.Fatal("stopped ticker should not fire")
	default:
	}
}
