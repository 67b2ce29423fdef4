// Package conformance provides a test harness that drives the catalog service
// end to end over its HTTP API.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edumaster/catalogd/internal/clock"
	"github.com/edumaster/catalogd/internal/dispatch"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/model"
	"github.com/edumaster/catalogd/internal/server"
	"github.com/edumaster/catalogd/internal/storage"
)

// Epoch is the harness clock's starting time.
var Epoch = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

// Harness runs the catalog service on a test server with a manual clock.
type Harness struct {
	server *httptest.Server
	mux    *server.Mux
	store  storage.Store
	clock  *clock.Fake
}

// Config holds configuration for the conformance test harness.
type Config struct {
	// Store backs the service; an in-memory store when nil.
	Store storage.Store

	// Publisher receives activity events; event.Noop when nil.
	Publisher event.Publisher

	// Seed is loaded into the store; DefaultSeed when nil.
	Seed *storage.Seed

	// TransitionDelay of navigation sessions; 100ms when zero.
	TransitionDelay time.Duration
}

// DefaultSeed is a small catalog with nested folders, every content kind and
// live classes in each phase.
func DefaultSeed() storage.Seed {
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	end := Epoch.Add(-30 * time.Minute)
	return storage.Seed{
		Batches: []model.Batch{{
			ID:        "neet-25",
			Name:      "NEET 2025",
			CreatedAt: created,
			Folders: []model.Folder{
				{ID: "bio", Name: "Biology", CreatedAt: created, SubFolders: []model.Folder{
					{ID: "cell", Name: "Cell Biology", CreatedAt: created, SubFolders: []model.Folder{
						{ID: "organelles", Name: "Organelles", CreatedAt: created},
					}, Content: []model.Content{
						{ID: "cell-1", Name: "Cell Structure", Type: model.KindVideo, URL: "https://cdn.example/cell-1.m3u8", CreatedAt: created},
						{ID: "cell-2", Name: "Cell Division", Type: model.KindVideo, URL: "https://player2.example/watch?v=2", PlayerType: model.RoutingAlternatePlayer, CreatedAt: created},
						{ID: "cell-notes", Name: "Cell Notes", Type: model.KindDocument, URL: "https://docs.example/cell", CreatedAt: created},
					}},
				}},
				{ID: "chem", Name: "Chemistry", CreatedAt: created},
			},
		}},
		LiveClasses: []model.LiveClass{
			{ID: "upcoming", BatchID: "neet-25", Title: "Genetics", ScheduledAt: Epoch.Add(90 * time.Minute)},
			{ID: "ready", BatchID: "neet-25", Title: "Ecology", ScheduledAt: Epoch.Add(-5 * time.Minute), ExternalMeetingLink: "https://meet.example/eco"},
			{ID: "ended", BatchID: "neet-25", Title: "Botany", ScheduledAt: Epoch.Add(-2 * time.Hour), EndTime: &end},
			{ID: "live", BatchID: "neet-25", Title: "Zoology", ScheduledAt: Epoch.Add(time.Hour), IsLive: true, StreamURL: "https://cdn.example/zoo.m3u8"},
		},
		GoLiveSessions: []model.GoLiveSession{
			{ID: "share", Title: "Doubt clearing", IsActive: true, StartedAt: Epoch},
		},
	}
}

// NewHarness creates a new conformance test harness.
func NewHarness(cfg Config) (*Harness, error) {
	seed := DefaultSeed()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}
	store := cfg.Store
	if store == nil {
		store = storage.NewMemory()
	}
	pub := cfg.Publisher
	if pub == nil {
		pub = event.Noop{}
	}
	if err := storage.ApplySeed(context.Background(), store, seed); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	fake := clock.NewFake(Epoch)
	mux, err := server.NewMux(server.Options{
		Store:           store,
		Publisher:       pub,
		Links:           dispatch.DefaultLinks(),
		Scheduler:       fake,
		TransitionDelay: cfg.TransitionDelay,
		Location:        time.UTC,
	})
	if err != nil {
		return nil, err
	}

	return &Harness{
		server: httptest.NewServer(mux),
		mux:    mux,
		store:  store,
		clock:  fake,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Advance moves the harness clock, firing due transitions and timers.
func (h *Harness) Advance(d time.Duration) {
	h.clock.Advance(d)
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.mux.Close()
	h.store.Close()
}

// Response is a decoded API envelope.
type Response struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

// Decode unmarshals the data member into out.
func (r Response) Decode(t *testing.T, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.Data, out); err != nil {
		t.Fatalf("decode data %s: %v", r.Data, err)
	}
}

// ErrorCode returns the error code, or "" for a success response.
func (r Response) ErrorCode() string {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// Do sends a request with an optional JSON body and decodes the envelope.
func (h *Harness) Do(t *testing.T, method, path, body string) Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.URL()+path, rd)
	if err != nil {
		t.Fatalf("build %s %s: %v", method, path, err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s %s: %v", method, path, err)
	}
	out := Response{Status: resp.StatusCode}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
		out.Status = resp.StatusCode
	}
	return out
}

// RunConformanceTests runs every API scenario against the harness.
func (h *Harness) RunConformanceTests(t *testing.T) {
	t.Run("HealthEndpoints", h.testHealthEndpoints)
	t.Run("APICompliance", h.testAPICompliance)
	t.Run("CatalogBrowsing", h.testCatalogBrowsing)
	t.Run("NavigationRoundTrip", h.testNavigationRoundTrip)
	t.Run("TransitionLock", h.testTransitionLock)
	t.Run("DispatchRouting", h.testDispatchRouting)
	t.Run("PlaybackSession", h.testPlaybackSession)
	t.Run("LiveSchedule", h.testLiveSchedule)
	t.Run("LiveCountdownElapses", h.testLiveCountdownElapses)
}

// testHealthEndpoints tests the health check endpoints.
func (h *Harness) testHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if got := h.Do(t, http.MethodGet, path, ""); got.Status != http.StatusOK {
			t.Errorf("GET %s = %d", path, got.Status)
		}
	}
}

// testAPICompliance verifies every read endpoint is routed.
func (h *Harness) testAPICompliance(t *testing.T) {
	for _, path := range []string{"/v1/batches", "/v1/batches/neet-25", "/v1/batches/neet-25/folders/bio", "/v1/live"} {
		if got := h.Do(t, http.MethodGet, path, ""); got.Status != http.StatusOK {
			t.Errorf("GET %s = %d %s", path, got.Status, got.ErrorCode())
		}
	}
	if got := h.Do(t, http.MethodGet, "/v1/nowhere", ""); got.Status != http.StatusNotFound || got.ErrorCode() != "CAT_NOT_FOUND" {
		t.Errorf("unknown route = %d %s", got.Status, got.ErrorCode())
	}
}

type item struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Description string `json:"description"`
}

type level struct {
	Title       string `json:"title"`
	Position    string `json:"position"`
	Interactive bool   `json:"interactive"`
	Empty       bool   `json:"empty"`
	Items       []item `json:"items"`
}

type navSession struct {
	ID            string  `json:"id"`
	Active        int     `json:"active"`
	Transitioning bool    `json:"transitioning"`
	Exited        bool    `json:"exited"`
	Levels        []level `json:"levels"`
}

type navResult struct {
	Applied bool       `json:"applied"`
	Back    string     `json:"back"`
	Session navSession `json:"session"`
}

func (h *Harness) testCatalogBrowsing(t *testing.T) {
	var folder struct {
		Name  string `json:"name"`
		Items []item `json:"items"`
		Stats struct {
			Videos          int `json:"videos"`
			Documents       int `json:"documents"`
			AlternatePlayer int `json:"alternatePlayer"`
		} `json:"stats"`
	}
	h.Do(t, http.MethodGet, "/v1/batches/neet-25/folders/cell", "").Decode(t, &folder)
	if folder.Name != "Cell Biology" || len(folder.Items) != 4 || folder.Items[0].Kind != "folder" {
		t.Errorf("folder = %+v", folder)
	}
	if folder.Stats.Videos != 2 || folder.Stats.Documents != 1 || folder.Stats.AlternatePlayer != 1 {
		t.Errorf("stats = %+v", folder.Stats)
	}

	got := h.Do(t, http.MethodGet, "/v1/batches/neet-25/folders/missing", "")
	if got.Status != http.StatusNotFound || got.Error == nil || got.Error.Details["back"] != "/v1/batches/neet-25" {
		t.Errorf("missing folder = %d %+v", got.Status, got.Error)
	}
}

func (h *Harness) openNav(t *testing.T) string {
	t.Helper()
	var nav navSession
	got := h.Do(t, http.MethodPost, "/v1/nav", `{"batchId":"neet-25"}`)
	if got.Status != http.StatusCreated {
		t.Fatalf("create nav = %d %s", got.Status, got.ErrorCode())
	}
	got.Decode(t, &nav)
	return "/v1/nav/" + nav.ID
}

func (h *Harness) enter(t *testing.T, base, folderID string) navResult {
	t.Helper()
	var res navResult
	h.Do(t, http.MethodPost, base+"/enter", fmt.Sprintf(`{"folderId":%q}`, folderID)).Decode(t, &res)
	return res
}

func (h *Harness) back(t *testing.T, base string) navResult {
	t.Helper()
	var res navResult
	h.Do(t, http.MethodPost, base+"/back", "").Decode(t, &res)
	return res
}

func (h *Harness) settle() {
	h.Advance(100 * time.Millisecond)
}

// testNavigationRoundTrip enters two levels and backs out to the root.
// Levels already visited stay stored for re-entry.
func (h *Harness) testNavigationRoundTrip(t *testing.T) {
	base := h.openNav(t)

	h.enter(t, base, "bio")
	h.settle()
	h.enter(t, base, "cell")
	h.settle()

	var nav navSession
	h.Do(t, http.MethodGet, base, "").Decode(t, &nav)
	if nav.Active != 2 || nav.Levels[2].Title != "Cell Biology" || !nav.Levels[2].Interactive {
		t.Fatalf("after two enters = %+v", nav)
	}

	h.back(t, base)
	h.settle()
	h.back(t, base)
	h.settle()

	h.Do(t, http.MethodGet, base, "").Decode(t, &nav)
	if nav.Active != 0 || len(nav.Levels) != 3 {
		t.Fatalf("after backing out = %+v", nav)
	}
	if nav.Levels[0].Position != "current" || nav.Levels[1].Position != "below" || nav.Levels[2].Position != "hidden" {
		t.Errorf("positions = %s %s %s", nav.Levels[0].Position, nav.Levels[1].Position, nav.Levels[2].Position)
	}

	// Entering a different folder drops the stale deeper levels.
	res := h.enter(t, base, "chem")
	if !res.Applied || len(res.Session.Levels) != 2 || !res.Session.Levels[1].Empty {
		t.Errorf("re-enter = %+v", res)
	}
	h.settle()

	h.back(t, base)
	h.settle()
	if res := h.back(t, base); !res.Session.Exited || res.Back != "/v1/batches" {
		t.Errorf("exit = %+v", res)
	}
}

// testTransitionLock checks that requests during a transition are dropped.
func (h *Harness) testTransitionLock(t *testing.T) {
	base := h.openNav(t)

	if res := h.enter(t, base, "bio"); !res.Applied {
		t.Fatalf("first enter dropped")
	}
	if res := h.enter(t, base, "chem"); res.Applied {
		t.Errorf("enter during transition applied")
	}
	if res := h.back(t, base); res.Applied || res.Session.Exited {
		t.Errorf("back during transition = %+v", res)
	}
	h.settle()

	var nav navSession
	h.Do(t, http.MethodGet, base, "").Decode(t, &nav)
	if nav.Active != 1 || nav.Levels[1].Title != "Biology" {
		t.Errorf("after transition = %+v", nav)
	}
}

type route struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
}

type selectResult struct {
	Route    route `json:"route"`
	Playback *struct {
		ID string `json:"id"`
	} `json:"playback"`
}

func (h *Harness) testDispatchRouting(t *testing.T) {
	base := h.openNav(t)
	h.enter(t, base, "bio")
	h.settle()
	h.enter(t, base, "cell")
	h.settle()

	tests := []struct {
		contentID string
		kind      string
		url       string
		playback  bool
	}{
		{"cell-1", "player", "https://cdn.example/cell-1.m3u8", true},
		{"cell-2", "external", "https://player2.example/watch?v=2", false},
		{"cell-notes", "external", "https://docs.example/cell", false},
	}
	for _, tt := range tests {
		var res selectResult
		h.Do(t, http.MethodPost, base+"/select", fmt.Sprintf(`{"contentId":%q}`, tt.contentID)).Decode(t, &res)
		if res.Route.Kind != tt.kind || res.Route.URL != tt.url || (res.Playback != nil) != tt.playback {
			t.Errorf("select %s = %+v", tt.contentID, res)
		}
		if res.Playback != nil {
			h.Do(t, http.MethodDelete, "/v1/playback/"+res.Playback.ID, "")
		}
	}

	if got := h.Do(t, http.MethodPost, base+"/select", `{"contentId":"nope"}`); got.Status != http.StatusNotFound {
		t.Errorf("unknown content = %d", got.Status)
	}
}

type playbackState struct {
	Phase           string  `json:"phase"`
	Position        float64 `json:"position"`
	Volume          float64 `json:"volume"`
	Muted           bool    `json:"muted"`
	Fullscreen      bool    `json:"fullscreen"`
	ControlsVisible bool    `json:"controlsVisible"`
	Error           string  `json:"error"`
}

type playbackView struct {
	ID    string        `json:"id"`
	State playbackState `json:"state"`
}

// testPlaybackSession drives a session through the element event protocol.
func (h *Harness) testPlaybackSession(t *testing.T) {
	var pb playbackView
	got := h.Do(t, http.MethodPost, "/v1/playback", `{"url":"https://cdn.example/a.m3u8","title":"Demo"}`)
	if got.Status != http.StatusCreated {
		t.Fatalf("create playback = %d %s", got.Status, got.ErrorCode())
	}
	got.Decode(t, &pb)
	base := "/v1/playback/" + pb.ID
	defer h.Do(t, http.MethodDelete, base, "")

	post := func(path, body string) playbackState {
		t.Helper()
		var v playbackView
		res := h.Do(t, http.MethodPost, base+path, body)
		if res.Status != http.StatusOK {
			t.Fatalf("POST %s %s = %d %s", path, body, res.Status, res.ErrorCode())
		}
		res.Decode(t, &v)
		return v.State
	}

	post("/events", `{"type":"loadedmetadata","duration":300}`)
	post("/actions", `{"action":"togglePlay"}`)
	if st := post("/events", `{"type":"playing"}`); st.Phase != "playing" {
		t.Fatalf("phase = %s", st.Phase)
	}

	// Controls hide after pointer inactivity while playing.
	post("/actions", `{"action":"pointerMove"}`)
	h.Advance(3 * time.Second)
	var v playbackView
	h.Do(t, http.MethodGet, base, "").Decode(t, &v)
	if v.State.ControlsVisible {
		t.Errorf("controls visible after inactivity")
	}

	if st := post("/actions", `{"action":"skipForward"}`); st.Position != 10 {
		t.Errorf("skip forward position = %v", st.Position)
	}
	if st := post("/actions", `{"action":"setVolume","value":0}`); !st.Muted || st.Volume != 0 {
		t.Errorf("volume 0 = %+v", st)
	}
	if st := post("/actions", `{"action":"toggleMute"}`); st.Muted || st.Volume != 0.5 {
		t.Errorf("unmute from zero = %+v", st)
	}

	// Fullscreen follows the platform, not the request.
	post("/actions", `{"action":"toggleFullscreen"}`)
	if st := post("/events", `{"type":"fullscreenchange","fullscreen":false}`); st.Fullscreen {
		t.Errorf("fullscreen kept after platform exit")
	}

	var cmds struct {
		Commands []struct {
			Type string `json:"type"`
		} `json:"commands"`
	}
	h.Do(t, http.MethodGet, base+"/commands", "").Decode(t, &cmds)
	if len(cmds.Commands) == 0 || cmds.Commands[0].Type != "load" {
		t.Errorf("commands = %+v", cmds.Commands)
	}

	post("/events", `{"type":"ended"}`)
	if st := post("/actions", `{"action":"togglePlay"}`); st.Position != 0 {
		t.Errorf("replay from ended position = %v", st.Position)
	}

	if got := h.Do(t, http.MethodDelete, base, ""); got.Status != http.StatusNoContent {
		t.Errorf("close = %d", got.Status)
	}
	if got := h.Do(t, http.MethodPost, base+"/actions", `{"action":"togglePlay"}`); got.Status != http.StatusNotFound {
		t.Errorf("action after close = %d", got.Status)
	}
}

// testLiveSchedule checks phase derivation and join links at the harness epoch.
func (h *Harness) testLiveSchedule(t *testing.T) {
	type class struct {
		ID     string `json:"id"`
		Status struct {
			Phase   string `json:"phase"`
			Hours   int    `json:"hours"`
			Minutes int    `json:"minutes"`
		} `json:"status"`
		JoinURL string `json:"joinUrl"`
	}
	var live struct {
		LiveNow   []class `json:"liveNow"`
		Scheduled []class `json:"scheduled"`
		GoLive    []struct {
			JoinURL string `json:"joinUrl"`
		} `json:"goLive"`
	}
	h.Do(t, http.MethodGet, "/v1/live", "").Decode(t, &live)

	if len(live.LiveNow) != 1 || live.LiveNow[0].Status.Phase != "live" {
		t.Fatalf("live now = %+v", live.LiveNow)
	}
	if !strings.HasSuffix(live.LiveNow[0].JoinURL, "/live/https%3A%2F%2Fcdn.example%2Fzoo.m3u8") {
		t.Errorf("live join url = %s", live.LiveNow[0].JoinURL)
	}

	want := map[string]string{"upcoming": "upcoming", "ready": "ready", "ended": "ended"}
	for _, c := range live.Scheduled {
		if c.Status.Phase != want[c.ID] {
			t.Errorf("%s phase = %s", c.ID, c.Status.Phase)
		}
		if c.ID == "upcoming" && (c.Status.Hours != 1 || c.Status.Minutes != 30) {
			t.Errorf("countdown = %+v", c.Status)
		}
		if c.ID == "ready" && c.JoinURL != "https://meet.example/eco" {
			t.Errorf("meeting join url = %s", c.JoinURL)
		}
		if c.ID == "ended" && c.JoinURL != dispatch.DefaultFallbackURL {
			t.Errorf("fallback join url = %s", c.JoinURL)
		}
	}
	if len(live.GoLive) != 1 {
		t.Errorf("go-live = %+v", live.GoLive)
	}
}

// testLiveCountdownElapses moves the clock past the upcoming class's start.
// It runs last since it moves the harness clock by more than an hour.
func (h *Harness) testLiveCountdownElapses(t *testing.T) {
	h.Advance(90*time.Minute + time.Second)

	var live struct {
		Scheduled []struct {
			ID     string `json:"id"`
			Status struct {
				Phase string `json:"phase"`
			} `json:"status"`
		} `json:"scheduled"`
	}
	h.Do(t, http.MethodGet, "/v1/live", "").Decode(t, &live)
	for _, c := range live.Scheduled {
		if c.ID == "upcoming" && c.Status.Phase != "ready" {
			t.Errorf("upcoming class after start = %s", c.Status.Phase)
		}
	}
}
