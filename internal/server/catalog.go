package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/edumaster/catalogd/internal/dispatch"
	errordefs "github.com/edumaster/catalogd/internal/errors"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/phase"
	"github.com/edumaster/catalogd/internal/storage"
)

// itemView is one tile of a level or folder listing.
type itemView struct {
	Kind        model.ItemKind      `json:"kind"`
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Type        model.ContentKind   `json:"type,omitempty"`
	PlayerType  model.PlayerRouting `json:"playerType,omitempty"`
}

func viewItems(items []model.Item) []itemView {
	out := make([]itemView, 0, len(items))
	for _, it := range items {
		v := itemView{Kind: it.Kind, ID: it.ID(), Name: it.Name(), Description: it.Description()}
		if it.Kind == model.ItemContent {
			v.Type = it.Content.Type
			v.PlayerType = it.Content.PlayerType
		}
		out = append(out, v)
	}
	return out
}

func folderItems(folders []model.Folder) []model.Item {
	items := make([]model.Item, 0, len(folders))
	for _, f := range folders {
		items = append(items, model.FolderItem(f))
	}
	return items
}

// rootTitle is the heading of a navigation root opened on name.
func rootTitle(name string) string {
	return name + " (Home)"
}

type batchSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Folders     int    `json:"folders"`
	CreatedAt   string `json:"createdAt"`
}

type batchView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Title       string     `json:"title"`
	Items       []itemView `json:"items"`
	Back        string     `json:"back"`
}

type folderView struct {
	BatchID     string             `json:"batchId"`
	BatchName   string             `json:"batchName"`
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Stats       model.ContentStats `json:"stats"`
	Items       []itemView         `json:"items"`
	Back        string             `json:"back"`
}

// notFound writes the terminal not-found view with its single back action.
func (m *Mux) notFound(w http.ResponseWriter, r *http.Request, message, back string) {
	m.writeErrorDef(w, errordefs.NewWithDetails(errordefs.CAT_NOT_FOUND, message, correlationIDFrom(r.Context()),
		map[string]string{"back": back}))
}

func (m *Mux) storeError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "catalog store failure", "error", err)
	m.writeErrorDef(w, errordefs.New(errordefs.CAT_INTERNAL, "catalog store failure", correlationIDFrom(r.Context())))
}

func (m *Mux) handleListBatches(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleListBatches")
	defer span.End()

	batches, err := m.s.ListBatches(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list batches")
		span.RecordError(err)
		m.storeError(w, r, err)
		return
	}
	out := make([]batchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchSummary{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Folders:     len(b.Folders),
			CreatedAt:   b.CreatedAt.Format("2006-01-02"),
		})
	}
	span.SetAttributes(attribute.Int("batches", len(out)))
	m.writeSuccess(w, http.StatusOK, out)
}

func (m *Mux) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleGetBatch")
	defer span.End()

	batchID := chi.URLParam(r, "batchID")
	span.SetAttributes(attribute.String("batch_id", batchID))

	b, err := m.s.GetBatch(ctx, batchID)
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
	m.writeSuccess(w, http.StatusOK, batchView{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Title:       rootTitle(b.Name),
		Items:       viewItems(folderItems(b.Folders)),
		Back:        "/v1/batches",
	})
}

func (m *Mux) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleGetFolder")
	defer span.End()

	batchID := chi.URLParam(r, "batchID")
	folderID := chi.URLParam(r, "folderID")
	span.SetAttributes(attribute.String("batch_id", batchID), attribute.String("folder_id", folderID))

	b, f, err := storage.FindFolder(ctx, m.s, batchID, folderID)
	if errors.Is(err, storage.ErrNotFound) {
		if b == nil {
			m.notFound(w, r, "batch not found", "/v1/batches")
		} else {
			m.notFound(w, r, "folder not found", "/v1/batches/"+batchID)
		}
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to find folder")
		span.RecordError(err)
		m.storeError(w, r, err)
		return
	}

	items := folderItems(f.Children())
	for _, c := range f.Items() {
		items = append(items, model.ContentItem(c))
	}
	m.writeSuccess(w, http.StatusOK, folderView{
		BatchID:     b.ID,
		BatchName:   b.Name,
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description(),
		Stats:       f.Stats(),
		Items:       viewItems(items),
		Back:        "/v1/batches/" + b.ID,
	})
}

type liveClassView struct {
	model.LiveClass
	Status  phase.Status `json:"status"`
	JoinURL string       `json:"joinUrl"`
}

type goLiveView struct {
	model.GoLiveSession
	JoinURL string `json:"joinUrl"`
}

type liveView struct {
	LiveNow   []liveClassView `json:"liveNow"`
	Scheduled []liveClassView `json:"scheduled"`
	GoLive    []goLiveView    `json:"goLive"`
}

// handleLive lists live classes with their computed phase and join links.
// Only active go-live sessions are listed.
func (m *Mux) handleLive(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracerName).Start(r.Context(), "handleLive")
	defer span.End()

	classes, err := m.s.ListLiveClasses(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list live classes")
		span.RecordError(err)
		m.storeError(w, r, err)
		return
	}
	goLive, err := m.s.ListGoLiveSessions(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list go-live sessions")
		span.RecordError(err)
		m.storeError(w, r, err)
		return
	}

	now := m.sched.Now()
	out := liveView{LiveNow: []liveClassView{}, Scheduled: []liveClassView{}, GoLive: []goLiveView{}}
	for _, lc := range classes {
		m.live.track(lc)
		v := liveClassView{
			LiveClass: lc,
			Status:    phase.Compute(now, phase.ScheduleOf(lc)),
			JoinURL:   m.links.JoinURL(dispatch.JoinTarget{StreamURL: lc.StreamURL, ExternalMeetingLink: lc.ExternalMeetingLink}),
		}
		if lc.IsLive {
			out.LiveNow = append(out.LiveNow, v)
		} else {
			out.Scheduled = append(out.Scheduled, v)
		}
	}
	for _, s := range goLive {
		if !s.IsActive {
			continue
		}
		out.GoLive = append(out.GoLive, goLiveView{
			GoLiveSession: s,
			JoinURL:       m.links.JoinURL(dispatch.JoinTarget{StreamURL: s.StreamURL, ExternalMeetingLink: s.ExternalMeetingLink}),
		})
	}
	span.SetAttributes(attribute.Int("live_now", len(out.LiveNow)), attribute.Int("scheduled", len(out.Scheduled)))
	m.writeSuccess(w, http.StatusOK, out)
}
