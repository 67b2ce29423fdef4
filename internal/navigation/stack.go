// Package navigation implements the hierarchical drill-down through a batch's
// folder tree: a stack of levels with exactly one active level and a guarded,
// delayed transition between levels.
package navigation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/dispatch"
	"github.com/edumaster/catalogd/internal/model"
)

// DefaultTransitionDelay is how long a level change stays in flight.
const DefaultTransitionDelay = 100 * time.Millisecond

var (
	// ErrCycle is returned when entering a folder already on the active path.
	ErrCycle = errors.New("folder already on the navigation path")
	// ErrClosed is returned by operations on a closed stack.
	ErrClosed = errors.New("navigation stack closed")
)

// Dispatcher routes selected content items.
type Dispatcher interface {
	Dispatch(ctx context.Context, c model.Content) (dispatch.Route, error)
}

// Options configure a Stack.
type Options struct {
	Scheduler  clock.Scheduler
	Delay      time.Duration
	Dispatcher Dispatcher
	// OnExit is called when GoBack is invoked at the root level.
	OnExit func()
	// OnTransition is called after a transition completes with the new active index.
	OnTransition func(active int)
}

// Stack is the navigation state machine. All methods are safe for concurrent use;
// callbacks are invoked without internal locks held.
type Stack struct {
	opts Options

	mu            sync.Mutex
	levels        []Level
	active        int
	transitioning bool
	pending       clock.Timer
	generation    int
	closed        bool
}

// New creates an empty stack; call Initialize before use.
func New(opts Options) *Stack {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Delay <= 0 {
		opts.Delay = DefaultTransitionDelay
	}
	if opts.OnExit == nil {
		opts.OnExit = func() {}
	}
	if opts.OnTransition == nil {
		opts.OnTransition = func(int) {}
	}
	return &Stack{opts: opts}
}

// Initialize resets the stack to a single root level holding rootFolders.
// Any in-flight transition is cancelled.
func (s *Stack) Initialize(rootFolders []model.Folder, rootTitle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.levels = []Level{RootLevel(rootFolders, rootTitle)}
	s.active = 0
}

// EnterFolder stages a level built from folder and starts the forward transition.
// It reports false without changing anything while a transition is in flight.
func (s *Stack) EnterFolder(folder model.Folder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.transitioning || len(s.levels) == 0 {
		return false, nil
	}
	if s.onPathLocked(folder.ID) {
		return false, ErrCycle
	}

	s.levels = append(s.levels[:s.active+1:s.active+1], LevelFor(folder))
	s.startTransitionLocked(+1)
	return true, nil
}

// GoBack starts the backward transition, or calls OnExit at the root.
// It reports false while a transition is in flight or at the root.
func (s *Stack) GoBack() (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if s.transitioning || len(s.levels) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	if s.active == 0 {
		s.mu.Unlock()
		s.opts.OnExit()
		return false, nil
	}
	s.startTransitionLocked(-1)
	s.mu.Unlock()
	return true, nil
}

// SelectContent forwards c to the dispatcher. The level sequence is untouched.
func (s *Stack) SelectContent(ctx context.Context, c model.Content) (dispatch.Route, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return dispatch.Route{}, ErrClosed
	}
	return s.opts.Dispatcher.Dispatch(ctx, c)
}

// Close cancels any pending transition. Further mutations return ErrClosed.
func (s *Stack) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.closed = true
}

// Transitioning reports whether a level change is in flight.
func (s *Stack) Transitioning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitioning
}

// ActiveIndex returns the index of the current level.
func (s *Stack) ActiveIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Len returns the number of stored levels, including ones kept for re-entry.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.levels)
}

// Active returns the current level.
func (s *Stack) Active() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.levels) == 0 {
		return Level{}
	}
	return s.levels[s.active]
}

// Snapshot returns every stored level tagged with its position relative to the
// active index.
func (s *Stack) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Active:        s.active,
		Transitioning: s.transitioning,
		Levels:        make([]LevelView, len(s.levels)),
	}
	for i, l := range s.levels {
		pos := PositionOf(i, s.active)
		st.Levels[i] = LevelView{
			Index:       i,
			Level:       l,
			Position:    pos,
			Interactive: pos == Current,
			Empty:       l.Empty(),
		}
	}
	return st
}

func (s *Stack) startTransitionLocked(step int) {
	s.transitioning = true
	s.generation++
	gen := s.generation
	s.pending = s.opts.Scheduler.AfterFunc(s.opts.Delay, func() { s.complete(gen, step) })
}

func (s *Stack) complete(gen, step int) {
	s.mu.Lock()
	if s.closed || gen != s.generation || !s.transitioning {
		s.mu.Unlock()
		return
	}
	s.active += step
	s.transitioning = false
	s.pending = nil
	active := s.active
	s.mu.Unlock()

	s.opts.OnTransition(active)
}

func (s *Stack) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.generation++
	s.transitioning = false
}

// onPathLocked reports whether a folder with id produced one of the levels up to
// and including the active one.
func (s *Stack) onPathLocked(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i <= s.active && i < len(s.levels); i++ {
		if p := s.levels[i].Parent; p != nil && p.ID == id {
			return true
		}
	}
	return false
}
