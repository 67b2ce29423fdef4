package phase

import (
	"testing"
	"time"

	"github.com/edumaster/catalogd/internal/clock"
)

func TestCompute(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		schedule Schedule
		want     Status
	}{
		{"starts in five seconds", Schedule{Start: now.Add(5 * time.Second)}, Status{Phase: Upcoming, Seconds: 5}},
		{"countdown decomposed", Schedule{Start: now.Add(26*time.Hour + 3*time.Minute + 4*time.Second + 900*time.Millisecond)},
			Status{Phase: Upcoming, Days: 1, Hours: 2, Minutes: 3, Seconds: 4}},
		{"started without end", Schedule{Start: now}, Status{Phase: Ready}},
		{"started, end in future", Schedule{Start: now.Add(-time.Minute), End: &future}, Status{Phase: Ready}},
		{"ended", Schedule{Start: now.Add(-time.Hour), End: &past}, Status{Phase: Ended}},
		{"live pre-empts countdown", Schedule{Start: now.Add(time.Hour), IsLive: true}, Status{Phase: Live}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compute(now, tt.schedule); got != tt.want {
				t.Errorf("Compute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeNearStartSeconds(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	got := Compute(now.Add(300*time.Millisecond), Schedule{Start: now.Add(5 * time.Second)})
	if got.Phase != Upcoming || (got.Seconds != 4 && got.Seconds != 5) {
		t.Fatalf("Compute() = %+v, want upcoming with 4 or 5 seconds", got)
	}
}

func TestClockTicksUntilStopped(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	var seen []Status
	c := NewClock(fake, Schedule{Start: start.Add(3 * time.Second)}, func(s Status) { seen = append(seen, s) })

	c.Start()
	fake.Advance(4 * time.Second)

	if len(seen) != 5 {
		t.Fatalf("ticks = %d, want 5", len(seen))
	}
	if seen[0].Seconds != 3 || seen[2].Seconds != 1 {
		t.Errorf("countdown = %v", seen)
	}
	if seen[3].Phase != Ready || c.Last().Phase != Ready {
		t.Errorf("phase after start = %v, want ready", seen[3].Phase)
	}

	c.Stop()
	c.Stop()
	if fake.Pending() != 0 {
		t.Fatalf("pending timers after Stop = %d", fake.Pending())
	}
	fake.Advance(10 * time.Second)
	if len(seen) != 5 {
		t.Fatalf("clock ticked after Stop")
	}
}

func TestClockLiveDoesNotTick(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	n := 0
	c := NewClock(fake, Schedule{Start: time.Unix(100, 0), IsLive: true}, func(Status) { n++ })
	c.Start()
	fake.Advance(time.Minute)
	if n != 1 || fake.Pending() != 0 {
		t.Fatalf("live clock ticked %d times, pending %d", n, fake.Pending())
	}
	c.Stop()
}

func TestComputeSubMillisecondBeforeStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	got := Compute(now, Schedule{Start: now.Add(500 * time.Microsecond)})
	if got != (Status{Phase: Upcoming}) {
		t.Fatalf("Compute() = %+v, want upcoming with a zero countdown", got)
	}
}

func TestClockRestartDropsStaleTick(t *testing.T) {
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFake(start)
	n := 0
	c := NewClock(fake, Schedule{Start: start.Add(time.Hour)}, func(Status) { n++ })

	c.Start()
	c.mu.Lock()
	stale := c.generation
	c.mu.Unlock()
	c.Stop()
	c.Start()

	// A tick of the first run that was already firing when Stop ran.
	c.tick(stale)

	if n != 2 {
		t.Fatalf("ticks = %d, want 2", n)
	}
	if fake.Pending() != 1 {
		t.Fatalf("pending timers = %d, want a single chain", fake.Pending())
	}
	fake.Advance(time.Second)
	if n != 3 || fake.Pending() != 1 {
		t.Fatalf("after one tick: ticks = %d, pending = %d", n, fake.Pending())
	}
	c.Stop()
}
