package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edumaster/catalogd/internal/dispatch"
	errordefs "github.com/edumaster/catalogd/internal/errors"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/navigation"
	"github.com/edumaster/catalogd/internal/schema"
	"github.com/edumaster/catalogd/internal/storage"
)

type navCreateRequest struct {
	BatchID  string `json:"batchId"`
	FolderID string `json:"folderId"`
}

type navEnterRequest struct {
	FolderID string `json:"folderId"`
}

type navSelectRequest struct {
	ContentID string `json:"contentId"`
	ElementID string `json:"elementId"`
}

type levelView struct {
	Index       int                 `json:"index"`
	Title       string              `json:"title"`
	Position    navigation.Position `json:"position"`
	Interactive bool                `json:"interactive"`
	Empty       bool                `json:"empty"`
	Items       []itemView          `json:"items"`
}

type navView struct {
	ID            string      `json:"id"`
	BatchID       string      `json:"batchId"`
	Active        int         `json:"active"`
	Transitioning bool        `json:"transitioning"`
	Exited        bool        `json:"exited"`
	Levels        []levelView `json:"levels"`
}

type navResult struct {
	Applied bool    `json:"applied"`
	Back    string  `json:"back,omitempty"`
	Session navView `json:"session"`
}

type selectResult struct {
	Route    dispatch.Route `json:"route"`
	Playback *playbackView  `json:"playback,omitempty"`
}

func viewNav(n *navSession) navView {
	st := n.stack.Snapshot()
	v := navView{
		ID:            n.id,
		BatchID:       n.batchID,
		Active:        st.Active,
		Transitioning: st.Transitioning,
		Exited:        n.isExited(),
		Levels:        make([]levelView, 0, len(st.Levels)),
	}
	for _, l := range st.Levels {
		v.Levels = append(v.Levels, levelView{
			Index:       l.Index,
			Title:       l.Level.Title,
			Position:    l.Position,
			Interactive: l.Interactive,
			Empty:       l.Empty,
			Items:       viewItems(l.Level.Items()),
		})
	}
	return v
}

// selection carries per-request dispatch inputs and outputs through the
// navigation stack to the opener.
type selection struct {
	elementID string
	playback  *playbackSession
}

type selectionKey struct{}

// selectDispatcher routes content selected in a navigation session.
type selectDispatcher struct {
	m *Mux
}

func (d selectDispatcher) Dispatch(ctx context.Context, c model.Content) (dispatch.Route, error) {
	sel, _ := ctx.Value(selectionKey{}).(*selection)
	if sel == nil {
		sel = &selection{}
	}
	return dispatch.New(&sessionOpener{m: d.m, sel: sel}, d.m.resolver).Dispatch(ctx, c)
}

// sessionOpener opens player routes as playback sessions. External routes are
// opened by the client from the returned route.
type sessionOpener struct {
	m   *Mux
	sel *selection
}

func (o *sessionOpener) OpenExternal(ctx context.Context, url string) error {
	return nil
}

func (o *sessionOpener) OpenPlayer(ctx context.Context, req dispatch.PlayerRequest) error {
	ps, err := o.m.openPlayback(ctx, req, o.sel.elementID)
	if err != nil {
		return err
	}
	o.sel.playback = ps
	return nil
}

func (m *Mux) lookupNav(w http.ResponseWriter, r *http.Request) (*navSession, bool) {
	n, ok := m.sessions.nav(chi.URLParam(r, "sessionID"))
	if !ok {
		m.notFound(w, r, "navigation session not found", "/v1/batches")
	}
	return n, ok
}

func (m *Mux) recordNav(ctx context.Context, n *navSession, action, outcome, folderID string) {
	m.metrics.NavigationTransitions.WithLabelValues(action, outcome).Inc()
	if outcome != "applied" {
		return
	}
	ev := model.NavigationEvent{
		SessionID:   n.id,
		BatchID:     n.batchID,
		Action:      action,
		FolderID:    folderID,
		ActiveIndex: n.stack.ActiveIndex(),
		OccurredAt:  m.sched.Now().UTC(),
	}
	m.publish("navigation", func(p event.Publisher) error { return p.PublishNavigation(ctx, ev) })
}

func (m *Mux) handleCreateNav(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleCreateNav")
	defer span.End()

	var req navCreateRequest
	if !m.decode(w, r, schema.NavCreate, &req) {
		span.SetStatus(codes.Error, "invalid request")
		return
	}
	span.SetAttributes(attribute.String("batch_id", req.BatchID), attribute.String("folder_id", req.FolderID))

	b, err := m.s.GetBatch(ctx, req.BatchID)
	if errors.Is(err, storage.ErrNotFound) {
		m.notFound(w, r, "batch not found", "/v1/batches")
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to get batch")
		span.RecordError(err)
		m.storeError(w, r, err)
		return
	}

	// A folder root shows the folder itself as the only tile.
	roots, title, exitTo := b.Folders, rootTitle(b.Name), "/v1/batches"
	if req.FolderID != "" {
		f, ok := model.FindFolder(b.Folders, req.FolderID)
		if !ok {
			m.notFound(w, r, "folder not found", "/v1/batches/"+b.ID)
			return
		}
		roots, title, exitTo = []model.Folder{*f}, rootTitle(f.Name), "/v1/batches/"+b.ID
	}

	n := &navSession{id: newSessionID(), batchID: b.ID, exitTo: exitTo}
	n.stack = navigation.New(navigation.Options{
		Scheduler:  m.sched,
		Delay:      m.transitionDelay,
		Dispatcher: selectDispatcher{m: m},
		OnExit:     n.markExited,
		OnTransition: func(active int) {
			slog.Debug("navigation transition settled", "session_id", n.id, "active", active)
		},
	})
	n.stack.Initialize(roots, title)
	m.sessions.addNav(n)

	span.SetAttributes(attribute.String("session_id", n.id))
	m.writeSuccess(w, http.StatusCreated, viewNav(n))
}

func (m *Mux) handleGetNav(w http.ResponseWriter, r *http.Request) {
	n, ok := m.lookupNav(w, r)
	if !ok {
		return
	}
	m.writeSuccess(w, http.StatusOK, viewNav(n))
}

// handleEnter enters a folder of the current level. Requests arriving while a
// transition is in flight are answered with applied=false.
func (m *Mux) handleEnter(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleEnter")
	defer span.End()

	n, ok := m.lookupNav(w, r)
	if !ok {
		return
	}
	var req navEnterRequest
	if !m.decode(w, r, schema.NavEnter, &req) {
		return
	}
	span.SetAttributes(attribute.String("session_id", n.id), attribute.String("folder_id", req.FolderID))

	var folder *model.Folder
	for _, f := range n.stack.Active().Folders {
		if f.ID == req.FolderID {
			f := f
			folder = &f
			break
		}
	}
	if folder == nil {
		m.notFound(w, r, "folder not found on the current level", "/v1/nav/"+n.id)
		return
	}

	applied, err := n.stack.EnterFolder(*folder)
	if err != nil {
		m.recordNav(ctx, n, "enter", "rejected", req.FolderID)
		span.SetStatus(codes.Error, err.Error())
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "dropped"
	}
	m.recordNav(ctx, n, "enter", outcome, req.FolderID)
	m.writeSuccess(w, http.StatusOK, navResult{Applied: applied, Session: viewNav(n)})
}

// handleBack returns to the previous level, or exits at the root.
func (m *Mux) handleBack(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleBack")
	defer span.End()

	n, ok := m.lookupNav(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.String("session_id", n.id))

	atRoot := n.stack.ActiveIndex() == 0 && !n.stack.Transitioning()
	applied, err := n.stack.GoBack()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.engineError(w, r, err, errordefs.CAT_INTERNAL)
		return
	}

	res := navResult{Applied: applied}
	switch {
	case applied:
		m.recordNav(ctx, n, "back", "applied", "")
	case atRoot && n.isExited():
		m.recordNav(ctx, n, "exit", "applied", "")
		res.Back = n.exitTo
	default:
		m.recordNav(ctx, n, "back", "dropped", "")
	}
	res.Session = viewNav(n)
	m.writeSuccess(w, http.StatusOK, res)
}

// handleSelect dispatches a content item of the current level. A player route
// opens a playback session and returns it.
func (m *Mux) handleSelect(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleSelect")
	defer span.End()

	n, ok := m.lookupNav(w, r)
	if !ok {
		return
	}
	var req navSelectRequest
	if !m.decode(w, r, schema.NavSelect, &req) {
		return
	}
	span.SetAttributes(attribute.String("session_id", n.id), attribute.String("content_id", req.ContentID))

	var content *model.Content
	for _, c := range n.stack.Active().Content {
		if c.ID == req.ContentID {
			c := c
			content = &c
			break
		}
	}
	if content == nil {
		m.notFound(w, r, "content not found on the current level", "/v1/nav/"+n.id)
		return
	}

	sel := &selection{elementID: req.ElementID}
	route, err := n.stack.SelectContent(context.WithValue(ctx, selectionKey{}, sel), *content)
	if err != nil {
		m.metrics.DispatchRoutes.WithLabelValues(string(route.Kind), "error").Inc()
		span.SetStatus(codes.Error, "dispatch failed")
		span.RecordError(err)
		slog.WarnContext(ctx, "content dispatch failed", "content_id", content.ID, "error", err)
		m.engineError(w, r, err, errordefs.CAT_UPSTREAM)
		return
	}
	m.metrics.DispatchRoutes.WithLabelValues(string(route.Kind), "ok").Inc()
	ev := model.DispatchEvent{SessionID: n.id, ContentID: content.ID, Route: string(route.Kind), OccurredAt: m.sched.Now().UTC()}
	m.publish("dispatch", func(p event.Publisher) error { return p.PublishDispatch(ctx, ev) })

	res := selectResult{Route: route}
	if sel.playback != nil {
		v := viewPlayback(sel.playback)
		res.Playback = &v
	}
	span.SetAttributes(attribute.String("route", string(route.Kind)))
	m.writeSuccess(w, http.StatusOK, res)
}

func (m *Mux) handleCloseNav(w http.ResponseWriter, r *http.Request) {
	if !m.sessions.removeKind(chi.URLParam(r, "sessionID"), kindNavigation) {
		m.notFound(w, r, "navigation session not found", "/v1/batches")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
