// Package playback drives one streaming media element and its control surface
// as a single-session state machine.
package playback

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/model"
)

// Phase is the derived playback state.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhasePlaying Phase = "playing"
	PhasePaused  Phase = "paused"
	PhaseEnded   Phase = "ended"
	PhaseError   Phase = "error"
)

const (
	// ControlsHideDelay is the pointer inactivity after which controls hide.
	ControlsHideDelay = 3 * time.Second
	// SkipStep is the distance of a skip backward/forward, in seconds.
	SkipStep = 10.0
	// VolumeStep is the keyboard volume increment.
	VolumeStep = 0.1
	// UnmuteVolume is restored on unmute when the stored volume is zero.
	UnmuteVolume = 0.5

	DefaultQuality = "Auto"

	loadErrorMessage = "Failed to load video. Please check the URL or try again."
	playErrorMessage = "Unable to play video. Please try again."
)

// Qualities is the fixed candidate set for SetQuality.
var Qualities = []string{"Auto", "1080p", "720p", "480p", "360p"}

var (
	ErrClosed           = errors.New("playback session closed")
	ErrControlsDisabled = errors.New("transport controls disabled while in error")
	ErrUnknownQuality   = errors.New("unknown quality label")
	ErrChatDisabled     = errors.New("chat is not enabled for this session")
	ErrNoSource         = errors.New("no source loaded")
	ErrUnknownEvent     = errors.New("unknown media event")
)

// Options configure an Engine.
type Options struct {
	Title string
	Type  model.PlaybackType
	Chat  bool

	Scheduler clock.Scheduler
	// Registry, when set, enforces single ownership of the element.
	Registry  *Registry
	SessionID string
	// Location renders chat send times; defaults to time.Local.
	Location *time.Location
	// OnClose runs once when the session is closed.
	OnClose func()
}

// State is a point-in-time copy of a session.
type State struct {
	Source          string             `json:"source"`
	Title           string             `json:"title"`
	Type            model.PlaybackType `json:"type"`
	Live            bool               `json:"live"`
	Phase           Phase              `json:"phase"`
	Error           string             `json:"error,omitempty"`
	Position        float64            `json:"position"`
	Duration        float64            `json:"duration"`
	PositionText    string             `json:"positionText"`
	DurationText    string             `json:"durationText"`
	Progress        float64            `json:"progress"`
	Volume          float64            `json:"volume"`
	Muted           bool               `json:"muted"`
	Fullscreen      bool               `json:"fullscreen"`
	Quality         string             `json:"quality"`
	ControlsVisible bool               `json:"controlsVisible"`
	VolumeMenuOpen  bool               `json:"volumeMenuOpen"`
	QualityMenuOpen bool               `json:"qualityMenuOpen"`
	ChatEnabled     bool               `json:"chatEnabled"`
	Chat            []Message          `json:"chat"`
}

// Engine is the playback state machine for one session. Methods are safe for
// concurrent use. Element methods are called with the engine lock held;
// listeners and OnClose are called without it.
type Engine struct {
	el   Element
	opts Options

	mu       sync.Mutex
	src      string
	position float64
	duration float64
	volume   float64
	muted    bool

	loading bool
	playing bool
	ended   bool
	errMsg  string

	// wantPlay is the user's current intent; playPending is set while a play
	// request has neither started playback nor been rejected.
	wantPlay    bool
	playPending bool

	fullscreen  bool
	quality     string
	controls    bool
	volumeMenu  bool
	qualityMenu bool
	hideTimer   clock.Timer
	hideGen     int

	chat    []Message
	entropy io.Reader

	listeners []func(State)
	lastPhase Phase
	closed    bool
}

// New creates a session bound to el. Call Load to start playback.
func New(el Element, opts Options) (*Engine, error) {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.Real{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Type == "" {
		opts.Type = model.PlaybackLecture
	}
	if opts.Registry != nil {
		if err := opts.Registry.Bind(el.ID(), opts.SessionID); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		el:       el,
		opts:     opts,
		volume:   1,
		loading:  true,
		quality:  DefaultQuality,
		controls: true,
		chat:     []Message{},
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
	if opts.Chat && opts.Type == model.PlaybackLive {
		e.chat = append(e.chat, greetings...)
	}
	e.lastPhase = e.phaseLocked()
	return e, nil
}

// Subscribe registers fn to be called after every phase change. The returned
// func removes the registration; Close removes all of them.
func (e *Engine) Subscribe(fn func(State)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return func() {}
	}
	e.listeners = append(e.listeners, fn)
	idx := len(e.listeners) - 1
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.listeners) {
			e.listeners[idx] = nil
		}
	}
}

// Load assigns the source, requests a reload and clears any prior error.
func (e *Engine) Load(url string) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	e.loadLocked(url)
	return nil
}

// Retry re-issues the load of the current source.
func (e *Engine) Retry() error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	if e.src == "" {
		return ErrNoSource
	}
	e.loadLocked(e.src)
	return nil
}

func (e *Engine) loadLocked(url string) {
	e.src = url
	e.errMsg = ""
	e.loading = true
	e.playing = false
	e.ended = false
	e.wantPlay = false
	e.playPending = false
	e.position = 0
	e.duration = 0
	e.el.Load(url)
}

// TogglePlay requests play when paused or ended and pause when playing.
func (e *Engine) TogglePlay() error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transportLocked(); err != nil {
		return err
	}
	if e.wantPlay {
		e.wantPlay = false
		e.el.Pause()
		return nil
	}
	if e.ended {
		e.ended = false
		e.position = 0
	}
	e.wantPlay = true
	e.playPending = true
	e.el.Play()
	return nil
}

// Seek moves the position, clamped to [0, duration]. The play state is unchanged.
func (e *Engine) Seek(seconds float64) error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transportLocked(); err != nil {
		return err
	}
	e.seekLocked(seconds)
	return nil
}

// SkipBackward moves the position back by SkipStep.
func (e *Engine) SkipBackward() error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transportLocked(); err != nil {
		return err
	}
	e.seekLocked(e.position - SkipStep)
	return nil
}

// SkipForward moves the position forward by SkipStep.
func (e *Engine) SkipForward() error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transportLocked(); err != nil {
		return err
	}
	e.seekLocked(e.position + SkipStep)
	return nil
}

func (e *Engine) seekLocked(seconds float64) {
	e.position = clamp(seconds, 0, e.duration)
	e.el.Seek(e.position)
}

// SetVolume sets the volume, clamped to [0, 1]. Zero mutes; any other value unmutes.
func (e *Engine) SetVolume(v float64) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	e.setVolumeLocked(v)
	return nil
}

// ChangeVolume adjusts the volume by delta.
func (e *Engine) ChangeVolume(delta float64) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	// keyboard steps stay on the 0.01 grid
	e.setVolumeLocked(math.Round((e.volume+delta)*100) / 100)
	return nil
}

func (e *Engine) setVolumeLocked(v float64) {
	if math.IsNaN(v) {
		v = 0
	}
	v = clamp(v, 0, 1)
	e.volume = v
	e.muted = v == 0
	e.el.SetVolume(v)
}

// ToggleMute mutes, or restores the prior volume (UnmuteVolume if it was zero).
func (e *Engine) ToggleMute() error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.muted {
		e.muted = true
		e.el.SetVolume(0)
		return nil
	}
	if e.volume <= 0 {
		e.volume = UnmuteVolume
	}
	e.muted = false
	e.el.SetVolume(e.volume)
	return nil
}

// ToggleFullscreen requests entering or leaving fullscreen. The flag is updated
// optimistically and corrected by the next fullscreenchange event.
func (e *Engine) ToggleFullscreen() error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	e.fullscreen = !e.fullscreen
	e.el.RequestFullscreen(e.fullscreen)
	return nil
}

// SetQuality records label, which must be one of Qualities.
func (e *Engine) SetQuality(label string) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}
	for _, q := range Qualities {
		if q == label {
			e.quality = label
			e.qualityMenu = false
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownQuality, label)
}

// SendChatMessage appends a local message. Blank text is ignored and reports false.
func (e *Engine) SendChatMessage(text string) (Message, bool, error) {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return Message{}, false, ErrClosed
	}
	if !e.opts.Chat {
		return Message{}, false, ErrChatDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, false, nil
	}
	now := e.opts.Scheduler.Now()
	msg := Message{
		ID:     ulid.MustNew(ulid.Timestamp(now), e.entropy).String(),
		Author: LocalAuthor,
		Text:   text,
		Time:   now.In(e.opts.Location).Format("15:04"),
	}
	e.chat = append(e.chat, msg)
	return msg, true, nil
}

// PointerMove shows the controls and restarts the auto-hide timer.
func (e *Engine) PointerMove() {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return
	}
	e.controls = true
	e.stopHideLocked()
	gen := e.hideGen
	e.hideTimer = e.opts.Scheduler.AfterFunc(ControlsHideDelay, func() { e.hide(gen) })
}

// PointerLeave forces the controls visible and cancels the auto-hide timer.
func (e *Engine) PointerLeave() {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return
	}
	e.stopHideLocked()
	e.controls = true
}

// SetMenus records whether the volume and quality sub-menus are open.
func (e *Engine) SetMenus(volumeOpen, qualityOpen bool) {
	e.mu.Lock()
	defer e.unlock()
	e.volumeMenu = volumeOpen
	e.qualityMenu = qualityOpen
}

func (e *Engine) hide(gen int) {
	e.mu.Lock()
	defer e.unlock()
	if e.closed || gen != e.hideGen {
		return
	}
	e.hideTimer = nil
	if e.phaseLocked() == PhasePlaying && !e.volumeMenu && !e.qualityMenu {
		e.controls = false
	}
}

func (e *Engine) stopHideLocked() {
	if e.hideTimer != nil {
		e.hideTimer.Stop()
		e.hideTimer = nil
	}
	e.hideGen++
}

// Close releases the session's timers, listeners and element. It is idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopHideLocked()
	e.listeners = nil
	e.mu.Unlock()

	if e.opts.Registry != nil {
		e.opts.Registry.Release(e.el.ID(), e.opts.SessionID)
	}
	if e.opts.OnClose != nil {
		e.opts.OnClose()
	}
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// State returns a copy of the session state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phaseLocked()
}

func (e *Engine) phaseLocked() Phase {
	switch {
	case e.errMsg != "":
		return PhaseError
	case e.loading:
		return PhaseLoading
	case e.ended:
		return PhaseEnded
	case e.playing:
		return PhasePlaying
	default:
		return PhasePaused
	}
}

func (e *Engine) stateLocked() State {
	var progress float64
	if e.duration > 0 {
		progress = e.position / e.duration * 100
	}
	vol := e.volume
	if e.muted {
		vol = 0
	}
	chat := make([]Message, len(e.chat))
	copy(chat, e.chat)
	return State{
		Source:          e.src,
		Title:           e.opts.Title,
		Type:            e.opts.Type,
		Live:            e.opts.Type == model.PlaybackLive,
		Phase:           e.phaseLocked(),
		Error:           e.errMsg,
		Position:        e.position,
		Duration:        e.duration,
		PositionText:    FormatTime(e.position),
		DurationText:    FormatTime(e.duration),
		Progress:        progress,
		Volume:          vol,
		Muted:           e.muted,
		Fullscreen:      e.fullscreen,
		Quality:         e.quality,
		ControlsVisible: e.controls,
		VolumeMenuOpen:  e.volumeMenu,
		QualityMenuOpen: e.qualityMenu,
		ChatEnabled:     e.opts.Chat,
		Chat:            chat,
	}
}

func (e *Engine) transportLocked() error {
	if e.closed {
		return ErrClosed
	}
	if e.errMsg != "" {
		return ErrControlsDisabled
	}
	return nil
}

// unlock releases the lock and, if the phase changed, notifies listeners.
// Leaving the playing phase brings the controls back.
func (e *Engine) unlock() {
	var (
		notify []func(State)
		st     State
	)
	if !e.closed {
		if p := e.phaseLocked(); p != e.lastPhase {
			e.lastPhase = p
			if p != PhasePlaying {
				e.stopHideLocked()
				e.controls = true
			}
			st = e.stateLocked()
			for _, fn := range e.listeners {
				if fn != nil {
					notify = append(notify, fn)
				}
			}
		}
	}
	e.mu.Unlock()

	for _, fn := range notify {
		fn(st)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
