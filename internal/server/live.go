package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/metrics"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/phase"
)

// liveWatchTimeout bounds the initial load of live classes.
const liveWatchTimeout = 5 * time.Second

// classClock is the running phase clock of one live class.
type classClock struct {
	class    model.LiveClass
	schedule phase.Schedule
	clock    *phase.Clock
	last     phase.Phase // empty until the first tick
}

// liveWatch runs a phase clock per live class and reports every phase change.
// Ended and live classes stop ticking.
type liveWatch struct {
	sched    clock.Scheduler
	metrics  *metrics.Metrics
	onChange func(model.LivePhaseEvent)

	mu      sync.Mutex
	classes map[string]*classClock
	closed  bool
}

func newLiveWatch(sched clock.Scheduler, m *metrics.Metrics, onChange func(model.LivePhaseEvent)) *liveWatch {
	return &liveWatch{sched: sched, metrics: m, onChange: onChange, classes: make(map[string]*classClock)}
}

// track starts a clock for lc unless one with the same schedule is running.
// A rescheduled class gets a fresh clock that keeps the last known phase.
func (w *liveWatch) track(lc model.LiveClass) {
	schedule := phase.ScheduleOf(lc)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	prev, exists := w.classes[lc.ID]
	if exists && sameSchedule(prev.schedule, schedule) {
		w.mu.Unlock()
		return
	}
	cc := &classClock{class: lc, schedule: schedule}
	if exists {
		cc.last = prev.last
	}
	c := phase.NewClock(w.sched, schedule, func(st phase.Status) { w.observe(cc, st) })
	cc.clock = c
	w.classes[lc.ID] = cc
	w.mu.Unlock()

	if exists {
		w.stop(prev)
	}
	w.metrics.LiveClocks.Inc()
	c.Start()
}

// observe runs on every tick of cc's clock.
func (w *liveWatch) observe(cc *classClock, st phase.Status) {
	w.mu.Lock()
	if w.closed || w.classes[cc.class.ID] != cc {
		w.mu.Unlock()
		return
	}
	from := cc.last
	cc.last = st.Phase
	w.mu.Unlock()

	if from != "" && from != st.Phase {
		w.metrics.LivePhaseTransitions.WithLabelValues(string(st.Phase)).Inc()
		w.onChange(model.LivePhaseEvent{
			ClassID:    cc.class.ID,
			BatchID:    cc.class.BatchID,
			From:       string(from),
			Phase:      string(st.Phase),
			OccurredAt: w.sched.Now().UTC(),
		})
	}
	if st.Phase == phase.Ended || st.Phase == phase.Live {
		w.stop(cc)
	}
}

// stop halts cc's clock once.
func (w *liveWatch) stop(cc *classClock) {
	w.mu.Lock()
	running := cc.clock != nil
	c := cc.clock
	cc.clock = nil
	w.mu.Unlock()

	if running {
		c.Stop()
		w.metrics.LiveClocks.Dec()
	}
}

// running returns the number of clocks still ticking.
func (w *liveWatch) running() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, cc := range w.classes {
		if cc.clock != nil {
			n++
		}
	}
	return n
}

func (w *liveWatch) closeAll() {
	w.mu.Lock()
	w.closed = true
	all := make([]*classClock, 0, len(w.classes))
	for _, cc := range w.classes {
		all = append(all, cc)
	}
	w.mu.Unlock()

	for _, cc := range all {
		w.stop(cc)
	}
}

func sameSchedule(a, b phase.Schedule) bool {
	if !a.Start.Equal(b.Start) || a.IsLive != b.IsLive {
		return false
	}
	if a.End == nil || b.End == nil {
		return a.End == nil && b.End == nil
	}
	return a.End.Equal(*b.End)
}

// watchLiveClasses starts a clock for every stored live class.
func (m *Mux) watchLiveClasses(ctx context.Context) {
	if m.s == nil {
		return
	}
	classes, err := m.s.ListLiveClasses(ctx)
	if err != nil {
		slog.Warn("failed to load live classes for phase tracking", "error", err)
		return
	}
	for _, lc := range classes {
		m.live.track(lc)
	}
}

// onLivePhase publishes a live class phase change.
func (m *Mux) onLivePhase(ev model.LivePhaseEvent) {
	slog.Info("live class phase changed", "class_id", ev.ClassID, "from", ev.From, "phase", ev.Phase)
	m.publish("live_phase", func(p event.Publisher) error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return p.PublishLivePhase(ctx, ev)
	})
}
