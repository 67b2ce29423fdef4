// Package phase derives the live/upcoming/ready/ended status of a scheduled
// session from wall-clock time.
package phase

import (
	"sync"
	"time"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/model"
)

// Phase classifies a scheduled session at a point in time.
type Phase string

const (
	Upcoming Phase = "upcoming"
	Ready    Phase = "ready"
	Ended    Phase = "ended"
	Live     Phase = "live"
)

// TickInterval is how often a Clock recomputes its status.
const TickInterval = time.Second

// Schedule is the input to Compute.
type Schedule struct {
	Start  time.Time
	End    *time.Time
	IsLive bool
}

// Status is the computed phase plus the countdown to the start while upcoming.
type Status struct {
	Phase   Phase `json:"phase"`
	Days    int   `json:"days"`
	Hours   int   `json:"hours"`
	Minutes int   `json:"minutes"`
	Seconds int   `json:"seconds"`
}

// ScheduleOf extracts the schedule of a live class.
func ScheduleOf(lc model.LiveClass) Schedule {
	return Schedule{Start: lc.ScheduledAt, End: lc.EndTime, IsLive: lc.IsLive}
}

// Compute maps now onto the schedule. Countdown components use floor division.
func Compute(now time.Time, s Schedule) Status {
	if s.IsLive {
		return Status{Phase: Live}
	}

	if s.Start.After(now) {
		distance := s.Start.Sub(now).Milliseconds()
		const (
			second = 1000
			minute = 60 * second
			hour   = 60 * minute
			day    = 24 * hour
		)
		return Status{
			Phase:   Upcoming,
			Days:    int(distance / day),
			Hours:   int(distance % day / hour),
			Minutes: int(distance % hour / minute),
			Seconds: int(distance % minute / second),
		}
	}
	if s.End != nil && now.After(*s.End) {
		return Status{Phase: Ended}
	}
	return Status{Phase: Ready}
}

// Clock recomputes a schedule's status every TickInterval and reports it to a callback.
// A live schedule is reported once and never ticks.
type Clock struct {
	sched    clock.Scheduler
	schedule Schedule
	onTick   func(Status)

	mu      sync.Mutex
	timer   clock.Timer
	last    Status
	running bool
	// generation invalidates ticks scheduled before the latest Start or Stop.
	generation int
}

// NewClock creates a stopped clock.
func NewClock(s clock.Scheduler, schedule Schedule, onTick func(Status)) *Clock {
	if onTick == nil {
		onTick = func(Status) {}
	}
	return &Clock{sched: s, schedule: schedule, onTick: onTick}
}

// Start computes the status immediately and then once per tick until Stop.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	c.tick(gen)
}

// Stop releases the ticker. It is safe to call more than once.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.generation++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Last returns the most recently computed status.
func (c *Clock) Last() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Clock) tick(gen int) {
	c.mu.Lock()
	if !c.running || gen != c.generation {
		c.mu.Unlock()
		return
	}
	st := Compute(c.sched.Now(), c.schedule)
	c.last = st
	if !c.schedule.IsLive {
		c.timer = c.sched.AfterFunc(TickInterval, func() { c.tick(gen) })
	}
	c.mu.Unlock()

	c.onTick(st)
}
