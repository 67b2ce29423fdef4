package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/metrics"
	"github.com/edumaster/catalogd/internal/navigation"
	"github.com/edumaster/catalogd/internal/playback"
)

const (
	kindNavigation = "navigation"
	kindPlayback   = "playback"
)

// navSession is one client's drill-down through a batch.
type navSession struct {
	id      string
	batchID string
	// exitTo is where the client goes when backing out of the root level.
	exitTo string
	stack  *navigation.Stack

	mu     sync.Mutex
	exited bool
}

func (n *navSession) markExited() {
	n.mu.Lock()
	n.exited = true
	n.mu.Unlock()
}

func (n *navSession) isExited() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.exited
}

// playbackSession binds an engine to the client-side element it drives.
type playbackSession struct {
	id      string
	engine  *playback.Engine
	element *playback.RemoteElement
}

type entry struct {
	nav      *navSession
	play     *playbackSession
	lastUsed time.Time
}

func (e *entry) close() {
	if e.nav != nil {
		e.nav.stack.Close()
	}
	if e.play != nil {
		e.play.engine.Close()
	}
}

func (e *entry) kind() string {
	if e.nav != nil {
		return kindNavigation
	}
	return kindPlayback
}

// sessions indexes open sessions by id and closes the ones left idle.
type sessions struct {
	sched   clock.Scheduler
	idleTTL time.Duration
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[string]*entry
	reaper  clock.Timer
	closed  bool
}

func newSessions(sched clock.Scheduler, idleTTL time.Duration, m *metrics.Metrics) *sessions {
	s := &sessions{
		sched:   sched,
		idleTTL: idleTTL,
		metrics: m,
		entries: make(map[string]*entry),
	}
	if idleTTL > 0 {
		s.mu.Lock()
		s.scheduleReapLocked()
		s.mu.Unlock()
	}
	return s
}

func newSessionID() string {
	return uuid.New().String()
}

func (s *sessions) addNav(n *navSession) {
	s.add(n.id, &entry{nav: n})
}

func (s *sessions) addPlayback(p *playbackSession) {
	s.add(p.id, &entry{play: p})
}

func (s *sessions) add(id string, e *entry) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		e.close()
		return
	}
	e.lastUsed = s.sched.Now()
	s.entries[id] = e
	s.mu.Unlock()
	s.metrics.ActiveSessions.WithLabelValues(e.kind()).Inc()
}

// nav returns the navigation session with id and marks it used.
func (s *sessions) nav(id string) (*navSession, bool) {
	e, ok := s.touch(id)
	if !ok || e.nav == nil {
		return nil, false
	}
	return e.nav, true
}

// playback returns the playback session with id and marks it used.
func (s *sessions) playback(id string) (*playbackSession, bool) {
	e, ok := s.touch(id)
	if !ok || e.play == nil {
		return nil, false
	}
	return e.play, true
}

func (s *sessions) touch(id string) (*entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		e.lastUsed = s.sched.Now()
	}
	return e, ok
}

// remove closes and forgets the session with id. It reports whether it existed.
func (s *sessions) remove(id string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.close()
	s.metrics.ActiveSessions.WithLabelValues(e.kind()).Dec()
	return true
}

// removeKind is remove restricted to sessions of the given kind.
func (s *sessions) removeKind(id, kind string) bool {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok || e.kind() != kind {
		return false
	}
	return s.remove(id)
}

// forget drops the session with id without closing it. Used by the OnClose hook
// of a playback engine that was closed through the engine itself.
func (s *sessions) forget(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if ok {
		s.metrics.ActiveSessions.WithLabelValues(e.kind()).Dec()
	}
}

func (s *sessions) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *sessions) scheduleReapLocked() {
	interval := s.idleTTL / 2
	if interval <= 0 {
		interval = s.idleTTL
	}
	s.reaper = s.sched.AfterFunc(interval, s.reap)
}

// reap closes every session idle for longer than the TTL and re-arms itself.
func (s *sessions) reap() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	cutoff := s.sched.Now().Add(-s.idleTTL)
	var stale []string
	for id, e := range s.entries {
		if e.lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.scheduleReapLocked()
	s.mu.Unlock()

	for _, id := range stale {
		s.remove(id)
	}
}

// closeAll closes every session and stops reaping.
func (s *sessions) closeAll() {
	s.mu.Lock()
	s.closed = true
	if s.reaper != nil {
		s.reaper.Stop()
		s.reaper = nil
	}
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.remove(id)
	}
}
