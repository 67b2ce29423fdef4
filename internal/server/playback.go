package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edumaster/catalogd/internal/dispatch"
	errordefs "github.com/edumaster/catalogd/internal/errors"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/media"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/navigation"
	"github.com/edumaster/catalogd/internal/playback"
	"github.com/edumaster/catalogd/internal/schema"
)

// publishTimeout bounds phase-change publishing, which runs outside any request context.
const publishTimeout = 2 * time.Second

type playbackCreateRequest struct {
	URL       string             `json:"url"`
	Title     string             `json:"title"`
	Type      model.PlaybackType `json:"type"`
	Chat      bool               `json:"chat"`
	ElementID string             `json:"elementId"`
}

type playbackActionRequest struct {
	Action          string   `json:"action"`
	URL             string   `json:"url"`
	Value           *float64 `json:"value"`
	Quality         string   `json:"quality"`
	VolumeMenuOpen  bool     `json:"volumeMenuOpen"`
	QualityMenuOpen bool     `json:"qualityMenuOpen"`
}

type keyRequest struct {
	Code string `json:"code"`
}

type chatRequest struct {
	Text string `json:"text"`
}

type playbackView struct {
	ID        string         `json:"id"`
	ElementID string         `json:"elementId"`
	State     playback.State `json:"state"`
}

type keyResult struct {
	Handled bool           `json:"handled"`
	State   playback.State `json:"state"`
}

type chatResult struct {
	Sent    bool              `json:"sent"`
	Message *playback.Message `json:"message,omitempty"`
}

type commandsResult struct {
	Commands []playback.Command `json:"commands"`
}

func viewPlayback(ps *playbackSession) playbackView {
	return playbackView{ID: ps.id, ElementID: ps.element.ID(), State: ps.engine.State()}
}

// engineError maps engine sentinel errors onto the error taxonomy. Errors
// without a mapping are reported with fallback.
func (m *Mux) engineError(w http.ResponseWriter, r *http.Request, err error, fallback errordefs.ErrorCode) {
	code := fallback
	switch {
	case errors.Is(err, playback.ErrClosed), errors.Is(err, navigation.ErrClosed):
		code = errordefs.CAT_SESSION_CLOSED
	case errors.Is(err, playback.ErrControlsDisabled):
		code = errordefs.CAT_CONTROLS_DISABLED
	case errors.Is(err, playback.ErrUnknownQuality), errors.Is(err, playback.ErrUnknownEvent),
		errors.Is(err, media.ErrInvalidObjectURL):
		code = errordefs.CAT_VALIDATION
	case errors.Is(err, playback.ErrChatDisabled), errors.Is(err, playback.ErrNoSource):
		code = errordefs.CAT_CONFLICT
	case errors.Is(err, playback.ErrElementInUse):
		code = errordefs.CAT_ELEMENT_IN_USE
	case errors.Is(err, navigation.ErrCycle):
		code = errordefs.CAT_CYCLE
	}
	m.writeErrorDef(w, errordefs.New(code, err.Error(), correlationIDFrom(r.Context())))
}

// resolve turns a stored source URL into a fetchable one.
func (m *Mux) resolve(ctx context.Context, raw string) (string, error) {
	if m.resolver == nil {
		return raw, nil
	}
	return m.resolver.Resolve(ctx, raw)
}

// openPlayback creates a playback session driving the client element
// elementID, or a fresh element when elementID is empty, and loads req.URL.
func (m *Mux) openPlayback(ctx context.Context, req dispatch.PlayerRequest, elementID string) (*playbackSession, error) {
	id := newSessionID()
	if elementID == "" {
		elementID = "el-" + id
	}
	el := playback.NewRemoteElement(elementID)

	eng, err := playback.New(el, playback.Options{
		Title:     req.Title,
		Type:      req.Type,
		Chat:      req.Chat,
		Scheduler: m.sched,
		Registry:  m.registry,
		SessionID: id,
		Location:  m.location,
		OnClose:   func() { m.sessions.forget(id) },
	})
	if err != nil {
		return nil, err
	}
	eng.Subscribe(func(st playback.State) { m.onPhaseChange(id, st) })
	if err := eng.Load(req.URL); err != nil {
		eng.Close()
		return nil, err
	}

	ps := &playbackSession{id: id, engine: eng, element: el}
	m.sessions.addPlayback(ps)
	return ps, nil
}

// onPhaseChange records and publishes a playback phase change.
func (m *Mux) onPhaseChange(sessionID string, st playback.State) {
	m.metrics.PlaybackPhases.WithLabelValues(string(st.Phase), string(st.Type)).Inc()
	ev := model.PlaybackEvent{
		SessionID:  sessionID,
		Type:       st.Type,
		Phase:      string(st.Phase),
		Position:   st.Position,
		Error:      st.Error,
		OccurredAt: m.sched.Now().UTC(),
	}
	m.publish("playback", func(p event.Publisher) error {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		return p.PublishPlayback(ctx, ev)
	})
}

func (m *Mux) lookupPlayback(w http.ResponseWriter, r *http.Request) (*playbackSession, bool) {
	ps, ok := m.sessions.playback(chi.URLParam(r, "sessionID"))
	if !ok {
		m.notFound(w, r, "playback session not found", "/v1/batches")
	}
	return ps, ok
}

func (m *Mux) handleCreatePlayback(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleCreatePlayback")
	defer span.End()

	var req playbackCreateRequest
	if !m.decode(w, r, schema.PlaybackCreate, &req) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}
	if req.Type == "" {
		req.Type = model.PlaybackLecture
	}
	span.SetAttributes(attribute.String("type", string(req.Type)), attribute.Bool("chat", req.Chat))

	src, err := m.resolve(ctx, req.URL)
	if err != nil {
		span.SetStatus(codes.Error, "failed to resolve source")
		span.RecordError(err)
		m.engineError(w, r, err, errordefs.CAT_UPSTREAM)
		return
	}
	ps, err := m.openPlayback(ctx, dispatch.PlayerRequest{URL: src, Title: req.Title, Type: req.Type, Chat: req.Chat}, req.ElementID)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open playback")
		span.RecordError(err)
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	span.SetAttributes(attribute.String("session_id", ps.id))
	m.writeSuccess(w, http.StatusCreated, viewPlayback(ps))
}

func (m *Mux) handleGetPlayback(w http.ResponseWriter, r *http.Request) {
	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	m.writeSuccess(w, http.StatusOK, viewPlayback(ps))
}

// handlePlaybackAction applies one named user intent to the session.
func (m *Mux) handlePlaybackAction(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handlePlaybackAction")
	defer span.End()

	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	var req playbackActionRequest
	if !m.decode(w, r, schema.PlaybackAction, &req) {
		return
	}
	span.SetAttributes(attribute.String("session_id", ps.id), attribute.String("action", req.Action))

	needValue := func() (float64, bool) {
		if req.Value == nil {
			m.writeErrorDef(w, errordefs.New(errordefs.CAT_VALIDATION, req.Action+" requires value", correlationIDFrom(ctx)))
			return 0, false
		}
		return *req.Value, true
	}

	eng := ps.engine
	var err error
	switch req.Action {
	case "load":
		if req.URL == "" {
			m.writeErrorDef(w, errordefs.New(errordefs.CAT_VALIDATION, "load requires url", correlationIDFrom(ctx)))
			return
		}
		var src string
		if src, err = m.resolve(ctx, req.URL); err == nil {
			err = eng.Load(src)
		}
	case "retry":
		err = eng.Retry()
	case "togglePlay":
		err = eng.TogglePlay()
	case "seek":
		v, ok := needValue()
		if !ok {
			return
		}
		err = eng.Seek(v)
	case "setVolume":
		v, ok := needValue()
		if !ok {
			return
		}
		err = eng.SetVolume(v)
	case "changeVolume":
		v, ok := needValue()
		if !ok {
			return
		}
		err = eng.ChangeVolume(v)
	case "toggleMute":
		err = eng.ToggleMute()
	case "skipBackward":
		err = eng.SkipBackward()
	case "skipForward":
		err = eng.SkipForward()
	case "toggleFullscreen":
		err = eng.ToggleFullscreen()
	case "setQuality":
		err = eng.SetQuality(req.Quality)
	case "pointerMove":
		eng.PointerMove()
	case "pointerLeave":
		eng.PointerLeave()
	case "setMenus":
		eng.SetMenus(req.VolumeMenuOpen, req.QualityMenuOpen)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	m.writeSuccess(w, http.StatusOK, viewPlayback(ps))
}

// handlePlaybackEvent feeds a media element notification to the session.
func (m *Mux) handlePlaybackEvent(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer(tracerName).Start(r.Context(), "handlePlaybackEvent")
	defer span.End()

	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	var ev playback.Event
	if !m.decode(w, r, schema.PlaybackEvent, &ev) {
		return
	}
	span.SetAttributes(attribute.String("session_id", ps.id), attribute.String("event", string(ev.Type)))

	if err := ps.engine.HandleEvent(ev); err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	m.writeSuccess(w, http.StatusOK, viewPlayback(ps))
}

// handlePlaybackKey applies a keyboard shortcut. Unhandled keys are reported
// with handled=false so the client keeps their default behaviour.
func (m *Mux) handlePlaybackKey(w http.ResponseWriter, r *http.Request) {
	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	var req keyRequest
	if !m.decode(w, r, schema.PlaybackKey, &req) {
		return
	}
	handled, err := ps.engine.HandleKey(req.Code)
	if err != nil {
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	m.writeSuccess(w, http.StatusOK, keyResult{Handled: handled, State: ps.engine.State()})
}

func (m *Mux) handlePlaybackChat(w http.ResponseWriter, r *http.Request) {
	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !m.decode(w, r, schema.PlaybackChat, &req) {
		return
	}
	msg, sent, err := ps.engine.SendChatMessage(req.Text)
	if err != nil {
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	res := chatResult{Sent: sent}
	if sent {
		res.Message = &msg
	}
	m.writeSuccess(w, http.StatusOK, res)
}

// handleDrainCommands hands the client every command queued for its element.
func (m *Mux) handleDrainCommands(w http.ResponseWriter, r *http.Request) {
	ps, ok := m.lookupPlayback(w, r)
	if !ok {
		return
	}
	cmds := ps.element.Drain()
	if cmds == nil {
		cmds = []playback.Command{}
	}
	m.writeSuccess(w, http.StatusOK, commandsResult{Commands: cmds})
}

func (m *Mux) handleClosePlayback(w http.ResponseWriter, r *http.Request) {
	if !m.sessions.removeKind(chi.URLParam(r, "sessionID"), kindPlayback) {
		m.notFound(w, r, "playback session not found", "/v1/batches")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
