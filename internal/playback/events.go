package playback

import "fmt"

// EventType names a media element notification.
type EventType string

const (
	EventLoadStart        EventType = "loadstart"
	EventLoadedMetadata   EventType = "loadedmetadata"
	EventTimeUpdate       EventType = "timeupdate"
	EventCanPlay          EventType = "canplay"
	EventWaiting          EventType = "waiting"
	EventPlaying          EventType = "playing"
	EventPause            EventType = "pause"
	EventEnded            EventType = "ended"
	EventError            EventType = "error"
	EventPlayRejected     EventType = "playrejected"
	EventFullscreenChange EventType = "fullscreenchange"
)

// Event is a notification from the media element.
type Event struct {
	Type       EventType `json:"type"`
	Position   float64   `json:"position,omitempty"`
	Duration   float64   `json:"duration,omitempty"`
	Message    string    `json:"message,omitempty"`
	Fullscreen bool      `json:"fullscreen,omitempty"`
}

// HandleEvent reconciles the session with an element notification. Outcomes of
// asynchronous play/pause requests are judged against the intent current at
// the time the event arrives.
func (e *Engine) HandleEvent(ev Event) error {
	e.mu.Lock()
	defer e.unlock()
	if e.closed {
		return ErrClosed
	}

	switch ev.Type {
	case EventLoadStart:
		e.loading = true
		e.errMsg = ""
	case EventLoadedMetadata:
		if ev.Duration > 0 {
			e.duration = ev.Duration
		}
		e.loading = false
		e.errMsg = ""
	case EventTimeUpdate:
		e.position = max(ev.Position, 0)
	case EventCanPlay:
		e.loading = false
		e.errMsg = ""
	case EventWaiting:
		e.loading = true
	case EventPlaying:
		pending := e.playPending
		e.playPending = false
		e.loading = false
		e.ended = false
		e.playing = true
		if !e.wantPlay {
			if pending {
				// paused while the play request was in flight
				e.el.Pause()
			} else {
				e.wantPlay = true
			}
		}
	case EventPause:
		e.playing = false
		if !e.playPending {
			e.wantPlay = false
		}
	case EventEnded:
		e.playing = false
		e.ended = true
		e.wantPlay = false
		e.playPending = false
	case EventError:
		e.loading = false
		e.playing = false
		e.wantPlay = false
		e.playPending = false
		e.errMsg = ev.Message
		if e.errMsg == "" {
			e.errMsg = loadErrorMessage
		}
	case EventPlayRejected:
		e.playPending = false
		if e.wantPlay {
			e.wantPlay = false
			e.errMsg = playErrorMessage
		}
	case EventFullscreenChange:
		e.fullscreen = ev.Fullscreen
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}
