package playback

import (
	"errors"
	"sync"
)

// ErrElementInUse is returned when a media element is already owned by another session.
var ErrElementInUse = errors.New("media element already bound to a session")

// Element is the media element a session drives. Play and Pause are requests:
// their outcome is reported back through Engine.HandleEvent.
// Implementations must not call back into the Engine synchronously.
type Element interface {
	ID() string
	Load(url string)
	Play()
	Pause()
	Seek(seconds float64)
	SetVolume(v float64)
	RequestFullscreen(enter bool)
}

// CommandType names an instruction for a remote media element.
type CommandType string

const (
	CmdLoad       CommandType = "load"
	CmdPlay       CommandType = "play"
	CmdPause      CommandType = "pause"
	CmdSeek       CommandType = "seek"
	CmdVolume     CommandType = "volume"
	CmdFullscreen CommandType = "fullscreen"
)

// Command is one queued instruction for a client-side media element.
type Command struct {
	Seq        uint64      `json:"seq"`
	Type       CommandType `json:"type"`
	URL        string      `json:"url,omitempty"`
	Position   float64     `json:"position,omitempty"`
	Volume     float64     `json:"volume,omitempty"`
	Fullscreen bool        `json:"fullscreen,omitempty"`
}

// maxQueuedCommands bounds the queue of a client that stopped draining.
const maxQueuedCommands = 512

// RemoteElement is an Element living on a client. Commands are queued until the
// client drains them; the client reports the element's events back over the API.
type RemoteElement struct {
	id string

	mu    sync.Mutex
	seq   uint64
	queue []Command
}

// NewRemoteElement creates a RemoteElement with the given id.
func NewRemoteElement(id string) *RemoteElement {
	return &RemoteElement{id: id}
}

func (r *RemoteElement) ID() string { return r.id }

func (r *RemoteElement) Load(url string) { r.push(Command{Type: CmdLoad, URL: url}) }
func (r *RemoteElement) Play() { r.push(Command{Type: CmdPlay}) }
func (r *RemoteElement) Pause() { r.push(Command{Type: CmdPause}) }
func (r *RemoteElement) Seek(seconds float64) { r.push(Command{Type: CmdSeek, Position: seconds}) }
func (r *RemoteElement) SetVolume(v float64) { r.push(Command{Type: CmdVolume, Volume: v}) }
func (r *RemoteElement) RequestFullscreen(enter bool) {
	r.push(Command{Type: CmdFullscreen, Fullscreen: enter})
}

// Drain returns and clears the queued commands, oldest first.
func (r *RemoteElement) Drain() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.queue
	r.queue = nil
	if out == nil {
		out = []Command{}
	}
	return out
}

func (r *RemoteElement) push(c Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	c.Seq = r.seq
	if len(r.queue) >= maxQueuedCommands {
		r.queue = r.queue[1:]
	}
	r.queue = append(r.queue, c)
}

// Registry tracks which session owns each media element.
type Registry struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]string)}
}

// Bind records sessionID as the owner of elementID.
func (r *Registry) Bind(elementID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if owner, ok := r.owners[elementID]; ok && owner != sessionID {
		return ErrElementInUse
	}
	r.owners[elementID] = sessionID
	return nil
}

// Release drops the binding if sessionID still owns elementID.
func (r *Registry) Release(elementID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.owners[elementID] == sessionID {
		delete(r.owners, elementID)
	}
}

// Owner returns the session currently bound to elementID.
func (r *Registry) Owner(elementID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner, ok := r.owners[elementID]
	return owner, ok
}
