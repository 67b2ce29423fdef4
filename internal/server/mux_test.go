// internal/server/mux_test.go
// Package server provides unit tests for the HTTP handlers and routing.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/dispatch"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/playback"
	"github.com/edumaster/catalogd/internal/storage"
)

// recordingPublisher implements event.Publisher and keeps every event.
type recordingPublisher struct {
	mu       sync.Mutex
	nav      []model.NavigationEvent
	dispatch []model.DispatchEvent
	playback []model.PlaybackEvent
	live     []model.LivePhaseEvent
}

func (p *recordingPublisher) PublishNavigation(ctx context.Context, ev model.NavigationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nav = append(p.nav, ev)
	return nil
}

func (p *recordingPublisher) PublishDispatch(ctx context.Context, ev model.DispatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatch = append(p.dispatch, ev)
	return nil
}

func (p *recordingPublisher) PublishPlayback(ctx context.Context, ev model.PlaybackEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playback = append(p.playback, ev)
	return nil
}

func (p *recordingPublisher) PublishLivePhase(ctx context.Context, ev model.LivePhaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = append(p.live, ev)
	return nil
}

func (p *recordingPublisher) livePhases() []model.LivePhaseEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.LivePhaseEvent(nil), p.live...)
}

func (p *recordingPublisher) Close() error { return nil }

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func testCatalog() storage.Seed {
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := t0.Add(-time.Hour)
	return storage.Seed{
		Batches: []model.Batch{{
			ID:        "b1",
			Name:      "JEE 2025",
			CreatedAt: created,
			Folders: []model.Folder{
				{ID: "phy", Name: "Physics", CreatedAt: created, SubFolders: []model.Folder{
					{ID: "kin", Name: "Kinematics", CreatedAt: created, Content: []model.Content{
						{ID: "v1", Name: "Lecture 1", Type: model.KindVideo, URL: "https://cdn.example/1.m3u8", CreatedAt: created},
						{ID: "v2", Name: "Lecture 2", Type: model.KindVideo, URL: "https://alt.example/2", PlayerType: model.RoutingAlternatePlayer, CreatedAt: created},
						{ID: "n1", Name: "Notes", Type: model.KindPDF, URL: "https://cdn.example/notes.pdf", CreatedAt: created},
					}},
				}},
				{ID: "empty", Name: "Chemistry", CreatedAt: created},
			},
		}},
		LiveClasses: []model.LiveClass{
			{ID: "soon", Title: "Doubt session", ScheduledAt: t0.Add(26*time.Hour + 3*time.Minute + 4*time.Second)},
			{ID: "past", Title: "Revision", ScheduledAt: t0.Add(-2 * time.Hour), EndTime: &end},
			{ID: "now", Title: "Mechanics", ScheduledAt: t0, IsLive: true, StreamURL: "https://cdn.example/live.m3u8"},
		},
		GoLiveSessions: []model.GoLiveSession{
			{ID: "g1", Title: "Screen share", IsActive: true, ExternalMeetingLink: "https://meet.example/abc", StartedAt: t0},
			{ID: "g2", Title: "Old share", IsActive: false, StartedAt: t0.Add(-time.Hour)},
		},
	}
}

type fixture struct {
	t     *testing.T
	mux   *Mux
	clock *clock.Fake
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemory()
	if err := storage.ApplySeed(context.Background(), store, testCatalog()); err != nil {
		t.Fatal(err)
	}
	fake := clock.NewFake(t0)
	pub := &recordingPublisher{}
	mux, err := NewMux(Options{
		Store:          store,
		Publisher:      pub,
		Links:          dispatch.DefaultLinks(),
		Scheduler:      fake,
		SessionIdleTTL: 10 * time.Minute,
		Location:       time.UTC,
	})
	if err != nil {
		t.Fatalf("NewMux() error = %v", err)
	}
	t.Cleanup(mux.Close)
	return &fixture{t: t, mux: mux, clock: fake, pub: pub}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

// do performs a request and decodes the envelope; out receives the data member.
func (f *fixture) do(method, path, body string, out interface{}) (int, envelope) {
	f.t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			f.t.Fatalf("%s %s: decode body %q: %v", method, path, rr.Body.String(), err)
		}
		if out != nil && env.Data != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				f.t.Fatalf("%s %s: decode data: %v", method, path, err)
			}
		}
	}
	return rr.Code, env
}

func (f *fixture) errorCode(method, path, body string) (int, string) {
	f.t.Helper()
	status, env := f.do(method, path, body, nil)
	if env.Error == nil {
		return status, ""
	}
	return status, env.Error.Code
}

func TestHealthzEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("X-Correlation-Id") == "" {
		t.Errorf("missing correlation id header")
	}
}

func TestReadyzEndpoint(t *testing.T) {
	f := newFixture(t)
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("readyz = %d", rr.Code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	f := newFixture(t)

	var batches []batchSummary
	if status, _ := f.do(http.MethodGet, "/v1/batches", "", &batches); status != http.StatusOK || len(batches) != 1 {
		t.Fatalf("list batches = %d %+v", status, batches)
	}

	var b batchView
	f.do(http.MethodGet, "/v1/batches/b1", "", &b)
	if b.Title != "JEE 2025 (Home)" || len(b.Items) != 2 || b.Items[0].Description != "1 items • 2024-05-01" {
		t.Errorf("batch view = %+v", b)
	}

	var folder folderView
	f.do(http.MethodGet, "/v1/batches/b1/folders/kin", "", &folder)
	if folder.Name != "Kinematics" || len(folder.Items) != 3 || folder.Stats.Videos != 2 || folder.Stats.AlternatePlayer != 1 {
		t.Errorf("folder view = %+v", folder)
	}
	if folder.Items[2].Description != "PDF • 2024-05-01" || folder.Back != "/v1/batches/b1" {
		t.Errorf("folder items = %+v", folder.Items)
	}

	status, env := f.do(http.MethodGet, "/v1/batches/b1/folders/nope", "", nil)
	if status != http.StatusNotFound || env.Error.Code != "CAT_NOT_FOUND" || env.Error.Details["back"] != "/v1/batches/b1" {
		t.Errorf("unknown folder = %d %+v", status, env.Error)
	}
	status, env = f.do(http.MethodGet, "/v1/batches/nope", "", nil)
	if status != http.StatusNotFound || env.Error.Details["back"] != "/v1/batches" {
		t.Errorf("unknown batch = %d %+v", status, env.Error)
	}
}

func TestLiveEndpoint(t *testing.T) {
	f := newFixture(t)

	var live liveView
	if status, _ := f.do(http.MethodGet, "/v1/live", "", &live); status != http.StatusOK {
		t.Fatalf("live status = %d", status)
	}
	if len(live.LiveNow) != 1 || live.LiveNow[0].Status.Phase != "live" {
		t.Fatalf("live now = %+v", live.LiveNow)
	}
	if want := dispatch.DefaultPlayerOrigin + "/live/https%3A%2F%2Fcdn.example%2Flive.m3u8"; live.LiveNow[0].JoinURL != want {
		t.Errorf("live join url = %q, want %q", live.LiveNow[0].JoinURL, want)
	}

	if len(live.Scheduled) != 2 {
		t.Fatalf("scheduled = %+v", live.Scheduled)
	}
	byID := map[string]liveClassView{}
	for _, v := range live.Scheduled {
		byID[v.ID] = v
	}
	soon := byID["soon"].Status
	if soon.Phase != "upcoming" || soon.Days != 1 || soon.Hours != 2 || soon.Minutes != 3 || soon.Seconds != 4 {
		t.Errorf("upcoming status = %+v", soon)
	}
	if byID["past"].Status.Phase != "ended" || byID["past"].JoinURL != dispatch.DefaultFallbackURL {
		t.Errorf("ended class = %+v", byID["past"])
	}

	if len(live.GoLive) != 1 || live.GoLive[0].JoinURL != "https://meet.example/abc" {
		t.Errorf("go-live = %+v", live.GoLive)
	}
}

func livePhaseCount(t *testing.T, m *Mux, phase string) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.metrics.LivePhaseTransitions.WithLabelValues(phase).Write(&out); err != nil {
		t.Fatal(err)
	}
	return out.GetCounter().GetValue()
}

func TestLiveClassPhaseTransitions(t *testing.T) {
	f := newFixture(t)

	// Only the upcoming class keeps ticking; ended and live classes stop.
	if n := f.mux.live.running(); n != 1 {
		t.Fatalf("running clocks at startup = %d, want 1", n)
	}

	end := t0.Add(5 * time.Second)
	quiz := model.LiveClass{ID: "quiz", BatchID: "b1", Title: "Quiz", ScheduledAt: t0.Add(2 * time.Second), EndTime: &end}
	if err := f.mux.s.PutLiveClass(context.Background(), quiz); err != nil {
		t.Fatal(err)
	}
	// Listing picks up classes added after startup.
	if status, _ := f.do(http.MethodGet, "/v1/live", "", nil); status != http.StatusOK {
		t.Fatalf("live status = %d", status)
	}
	readyBefore := livePhaseCount(t, f.mux, "ready")

	f.clock.Advance(3 * time.Second)
	got := f.pub.livePhases()
	if len(got) != 1 || got[0].ClassID != "quiz" || got[0].From != "upcoming" || got[0].Phase != "ready" || got[0].BatchID != "b1" {
		t.Fatalf("after start = %+v", got)
	}
	if !got[0].OccurredAt.Equal(t0.Add(2 * time.Second)) {
		t.Errorf("transition time = %v", got[0].OccurredAt)
	}
	if d := livePhaseCount(t, f.mux, "ready") - readyBefore; d != 1 {
		t.Errorf("ready transitions counted = %v", d)
	}

	f.clock.Advance(3 * time.Second)
	got = f.pub.livePhases()
	if len(got) != 2 || got[1].From != "ready" || got[1].Phase != "ended" {
		t.Fatalf("after end = %+v", got)
	}
	if n := f.mux.live.running(); n != 1 {
		t.Errorf("running clocks after end = %d, want 1", n)
	}

	// Re-listing does not restart an unchanged class.
	f.do(http.MethodGet, "/v1/live", "", nil)
	f.clock.Advance(time.Minute)
	if n := len(f.pub.livePhases()); n != 2 {
		t.Errorf("events after idle minute = %d", n)
	}

	f.mux.Close()
	if n := f.mux.live.running(); n != 0 {
		t.Errorf("running clocks after Close = %d", n)
	}
	if n := f.clock.Pending(); n != 0 {
		t.Errorf("pending timers after Close = %d", n)
	}
}

func TestNavigationFlow(t *testing.T) {
	f := newFixture(t)

	var nav navView
	if status, _ := f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1"}`, &nav); status != http.StatusCreated {
		t.Fatalf("create nav = %d", status)
	}
	if len(nav.Levels) != 1 || nav.Levels[0].Title != "JEE 2025 (Home)" || nav.Levels[0].Position != "current" {
		t.Fatalf("root = %+v", nav)
	}
	base := "/v1/nav/" + nav.ID

	var res navResult
	f.do(http.MethodPost, base+"/enter", `{"folderId":"phy"}`, &res)
	if !res.Applied || !res.Session.Transitioning || len(res.Session.Levels) != 2 || res.Session.Levels[1].Position != "below" {
		t.Fatalf("enter = %+v", res)
	}

	// Requests during the transition are dropped.
	f.do(http.MethodPost, base+"/enter", `{"folderId":"empty"}`, &res)
	if res.Applied || len(res.Session.Levels) != 2 {
		t.Errorf("enter while transitioning = %+v", res)
	}

	f.clock.Advance(100 * time.Millisecond)
	f.do(http.MethodGet, base, "", &nav)
	if nav.Active != 1 || nav.Transitioning || nav.Levels[0].Position != "above" || nav.Levels[1].Title != "Physics" {
		t.Fatalf("after transition = %+v", nav)
	}

	// Folders of non-current levels are not reachable.
	if status, code := f.errorCode(http.MethodPost, base+"/enter", `{"folderId":"empty"}`); status != http.StatusNotFound || code != "CAT_NOT_FOUND" {
		t.Errorf("enter off-level folder = %d %s", status, code)
	}

	f.do(http.MethodPost, base+"/back", "", &res)
	if !res.Applied {
		t.Fatalf("back = %+v", res)
	}
	f.clock.Advance(100 * time.Millisecond)

	f.do(http.MethodPost, base+"/back", "", &res)
	if res.Applied || !res.Session.Exited || res.Back != "/v1/batches" {
		t.Errorf("back at root = %+v", res)
	}

	f.pub.mu.Lock()
	actions := make([]string, 0, len(f.pub.nav))
	for _, ev := range f.pub.nav {
		actions = append(actions, ev.Action)
	}
	f.pub.mu.Unlock()
	if strings.Join(actions, ",") != "enter,back,exit" {
		t.Errorf("published navigation actions = %v", actions)
	}
}

func TestNavigationOnFolderRoot(t *testing.T) {
	f := newFixture(t)

	var nav navView
	f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1","folderId":"kin"}`, &nav)
	if len(nav.Levels) != 1 || nav.Levels[0].Title != "Kinematics (Home)" || len(nav.Levels[0].Items) != 1 {
		t.Fatalf("folder root = %+v", nav)
	}

	var res navResult
	f.do(http.MethodPost, "/v1/nav/"+nav.ID+"/back", "", &res)
	if res.Back != "/v1/batches/b1" {
		t.Errorf("exit from folder root = %+v", res)
	}

	if status, code := f.errorCode(http.MethodPost, "/v1/nav", `{"batchId":"b1","folderId":"nope"}`); status != http.StatusNotFound || code != "CAT_NOT_FOUND" {
		t.Errorf("unknown root folder = %d %s", status, code)
	}
}

func TestEmptyFolderLevel(t *testing.T) {
	f := newFixture(t)
	var nav navView
	f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1"}`, &nav)

	var res navResult
	f.do(http.MethodPost, "/v1/nav/"+nav.ID+"/enter", `{"folderId":"empty"}`, &res)
	if !res.Applied || !res.Session.Levels[1].Empty || len(res.Session.Levels[1].Items) != 0 {
		t.Errorf("empty level = %+v", res.Session.Levels)
	}
}

// openKinematics drills a new session down to the Kinematics level.
func (f *fixture) openKinematics() string {
	f.t.Helper()
	var nav navView
	f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1"}`, &nav)
	base := "/v1/nav/" + nav.ID
	f.do(http.MethodPost, base+"/enter", `{"folderId":"phy"}`, nil)
	f.clock.Advance(100 * time.Millisecond)
	f.do(http.MethodPost, base+"/enter", `{"folderId":"kin"}`, nil)
	f.clock.Advance(100 * time.Millisecond)
	return base
}

func TestSelectContentRoutes(t *testing.T) {
	f := newFixture(t)
	base := f.openKinematics()

	var sel selectResult
	if status, _ := f.do(http.MethodPost, base+"/select", `{"contentId":"v1"}`, &sel); status != http.StatusOK {
		t.Fatalf("select video = %d", status)
	}
	if sel.Route.Kind != dispatch.RoutePlayer || sel.Playback == nil {
		t.Fatalf("select video = %+v", sel)
	}
	if sel.Playback.State.Title != "Lecture 1" || sel.Playback.State.Phase != playback.PhaseLoading {
		t.Errorf("opened playback = %+v", sel.Playback.State)
	}

	var cmds commandsResult
	f.do(http.MethodGet, "/v1/playback/"+sel.Playback.ID+"/commands", "", &cmds)
	if len(cmds.Commands) != 1 || cmds.Commands[0].Type != playback.CmdLoad || cmds.Commands[0].URL != "https://cdn.example/1.m3u8" {
		t.Errorf("queued commands = %+v", cmds.Commands)
	}

	sel = selectResult{}
	f.do(http.MethodPost, base+"/select", `{"contentId":"v2"}`, &sel)
	if sel.Route.Kind != dispatch.RouteExternal || sel.Route.URL != "https://alt.example/2" || sel.Playback != nil {
		t.Errorf("select alternate video = %+v", sel)
	}

	sel = selectResult{}
	f.do(http.MethodPost, base+"/select", `{"contentId":"n1"}`, &sel)
	if sel.Route.Kind != dispatch.RouteExternal || sel.Route.URL != "https://cdn.example/notes.pdf" {
		t.Errorf("select pdf = %+v", sel)
	}

	var nav navView
	f.do(http.MethodGet, base, "", &nav)
	if nav.Active != 2 || len(nav.Levels) != 3 {
		t.Errorf("select changed levels: %+v", nav)
	}
}

func TestSchemaRejection(t *testing.T) {
	f := newFixture(t)
	if status, code := f.errorCode(http.MethodPost, "/v1/nav", `{}`); status != http.StatusBadRequest || code != "CAT_SCHEMA_REJECT" {
		t.Errorf("empty nav create = %d %s", status, code)
	}
	if status, code := f.errorCode(http.MethodPost, "/v1/playback", `{"url":"x","type":"webinar"}`); status != http.StatusBadRequest || code != "CAT_SCHEMA_REJECT" {
		t.Errorf("bad playback type = %d %s", status, code)
	}
}

func (f *fixture) createPlayback(body string) playbackView {
	f.t.Helper()
	var v playbackView
	if status, env := f.do(http.MethodPost, "/v1/playback", body, &v); status != http.StatusCreated {
		f.t.Fatalf("create playback = %d %+v", status, env.Error)
	}
	return v
}

func TestPlaybackLifecycle(t *testing.T) {
	f := newFixture(t)
	pb := f.createPlayback(`{"url":"https://cdn.example/1.m3u8","title":"Lecture 1"}`)
	base := "/v1/playback/" + pb.ID

	var v playbackView
	f.do(http.MethodPost, base+"/events", `{"type":"loadedmetadata","duration":120}`, &v)
	if v.State.Phase != playback.PhasePaused || v.State.DurationText != "2:00" {
		t.Fatalf("after metadata = %+v", v.State)
	}

	f.do(http.MethodPost, base+"/actions", `{"action":"togglePlay"}`, &v)
	f.do(http.MethodPost, base+"/events", `{"type":"playing"}`, &v)
	if v.State.Phase != playback.PhasePlaying {
		t.Fatalf("after playing = %+v", v.State)
	}

	f.do(http.MethodPost, base+"/actions", `{"action":"seek","value":500}`, &v)
	if v.State.Position != 120 {
		t.Errorf("seek clamp = %v", v.State.Position)
	}
	if status, code := f.errorCode(http.MethodPost, base+"/actions", `{"action":"seek"}`); status != http.StatusBadRequest || code != "CAT_VALIDATION" {
		t.Errorf("seek without value = %d %s", status, code)
	}
	if status, code := f.errorCode(http.MethodPost, base+"/actions", `{"action":"setQuality","quality":"4K"}`); status != http.StatusBadRequest || code != "CAT_VALIDATION" {
		t.Errorf("unknown quality = %d %s", status, code)
	}

	var cmds commandsResult
	f.do(http.MethodGet, base+"/commands", "", &cmds)
	types := make([]string, 0, len(cmds.Commands))
	for _, c := range cmds.Commands {
		types = append(types, string(c.Type))
	}
	if strings.Join(types, ",") != "load,play,seek" {
		t.Errorf("commands = %v", types)
	}

	f.do(http.MethodPost, base+"/events", `{"type":"error","message":"decode failed"}`, &v)
	if v.State.Phase != playback.PhaseError || v.State.Error != "decode failed" {
		t.Fatalf("after error = %+v", v.State)
	}
	if status, code := f.errorCode(http.MethodPost, base+"/actions", `{"action":"togglePlay"}`); status != http.StatusConflict || code != "CAT_CONTROLS_DISABLED" {
		t.Errorf("toggle in error = %d %s", status, code)
	}
	f.do(http.MethodPost, base+"/actions", `{"action":"retry"}`, &v)
	if v.State.Phase != playback.PhaseLoading {
		t.Errorf("after retry = %+v", v.State)
	}

	f.pub.mu.Lock()
	phases := make([]string, 0, len(f.pub.playback))
	for _, ev := range f.pub.playback {
		phases = append(phases, ev.Phase)
	}
	f.pub.mu.Unlock()
	if strings.Join(phases, ",") != "paused,playing,error,loading" {
		t.Errorf("published phases = %v", phases)
	}
}

func TestPlaybackKeysAndChat(t *testing.T) {
	f := newFixture(t)
	lecture := f.createPlayback(`{"url":"https://cdn.example/1.m3u8"}`)

	var kr keyResult
	f.do(http.MethodPost, "/v1/playback/"+lecture.ID+"/keys", `{"code":"F12"}`, &kr)
	if kr.Handled {
		t.Errorf("F12 handled")
	}
	f.do(http.MethodPost, "/v1/playback/"+lecture.ID+"/keys", `{"code":"KeyM"}`, &kr)
	if !kr.Handled || !kr.State.Muted {
		t.Errorf("KeyM = %+v", kr)
	}
	if status, code := f.errorCode(http.MethodPost, "/v1/playback/"+lecture.ID+"/chat", `{"text":"hi"}`); status != http.StatusConflict || code != "CAT_CONFLICT" {
		t.Errorf("chat on lecture = %d %s", status, code)
	}

	live := f.createPlayback(`{"url":"https://cdn.example/live.m3u8","title":"Mechanics","type":"live","chat":true}`)
	if !live.State.Live || len(live.State.Chat) != 3 {
		t.Fatalf("live session = %+v", live.State)
	}
	var cr chatResult
	f.do(http.MethodPost, "/v1/playback/"+live.ID+"/chat", `{"text":"   "}`, &cr)
	if cr.Sent {
		t.Errorf("blank message sent")
	}
	f.do(http.MethodPost, "/v1/playback/"+live.ID+"/chat", `{"text":" Great class "}`, &cr)
	if !cr.Sent || cr.Message.Author != playback.LocalAuthor || cr.Message.Text != "Great class" || cr.Message.Time != "12:00" {
		t.Errorf("chat = %+v", cr)
	}
}

func TestElementOwnership(t *testing.T) {
	f := newFixture(t)
	first := f.createPlayback(`{"url":"https://cdn.example/1.m3u8","elementId":"tv"}`)

	if status, code := f.errorCode(http.MethodPost, "/v1/playback", `{"url":"https://cdn.example/2.m3u8","elementId":"tv"}`); status != http.StatusConflict || code != "CAT_ELEMENT_IN_USE" {
		t.Fatalf("second bind = %d %s", status, code)
	}

	if status, _ := f.do(http.MethodDelete, "/v1/playback/"+first.ID, "", nil); status != http.StatusNoContent {
		t.Fatalf("delete = %d", status)
	}
	if status, _ := f.do(http.MethodGet, "/v1/playback/"+first.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("get after delete = %d", status)
	}
	f.createPlayback(`{"url":"https://cdn.example/2.m3u8","elementId":"tv"}`)
}

func TestIdleSessionsReaped(t *testing.T) {
	f := newFixture(t)
	var nav navView
	f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1"}`, &nav)
	pb := f.createPlayback(`{"url":"https://cdn.example/1.m3u8"}`)

	f.clock.Advance(8 * time.Minute)
	f.do(http.MethodGet, "/v1/playback/"+pb.ID, "", nil)
	f.clock.Advance(8 * time.Minute)

	if status, _ := f.do(http.MethodGet, "/v1/nav/"+nav.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("idle nav session status = %d", status)
	}
	if status, _ := f.do(http.MethodGet, "/v1/playback/"+pb.ID, "", nil); status != http.StatusOK {
		t.Errorf("touched playback session status = %d", status)
	}
	if n := f.mux.sessions.len(); n != 1 {
		t.Errorf("open sessions = %d", n)
	}
}

func TestCloseNavSession(t *testing.T) {
	f := newFixture(t)
	var nav navView
	f.do(http.MethodPost, "/v1/nav", `{"batchId":"b1"}`, &nav)

	if status, _ := f.do(http.MethodDelete, "/v1/playback/"+nav.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("delete nav via playback route = %d", status)
	}
	if status, _ := f.do(http.MethodDelete, "/v1/nav/"+nav.ID, "", nil); status != http.StatusNoContent {
		t.Fatalf("delete nav = %d", status)
	}
	if status, _ := f.do(http.MethodGet, "/v1/nav/"+nav.ID, "", nil); status != http.StatusNotFound {
		t.Errorf("get after delete = %d", status)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	f.mux.corsAllowedOrigins = []string{"https://app.example"}

	req := httptest.NewRequest(http.MethodOptions, "/v1/nav", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Errorf("preflight = %d %v", rr.Code, rr.Header())
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/nav", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	f.mux.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Errorf("disallowed origin echoed")
	}
}
