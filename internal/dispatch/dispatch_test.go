package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/edumaster/catalogd/internal/model"
)

// recordingOpener captures every open action for assertions.
type recordingOpener struct {
	external []string
	player   []PlayerRequest
	err      error
}

func (o *recordingOpener) OpenExternal(ctx context.Context, url string) error {
	o.external = append(o.external, url)
	return o.err
}

func (o *recordingOpener) OpenPlayer(ctx context.Context, req PlayerRequest) error {
	o.player = append(o.player, req)
	return o.err
}

type prefixResolver struct{}

func (prefixResolver) Resolve(ctx context.Context, raw string) (string, error) {
	if strings.HasPrefix(raw, "s3://") {
		return "https://signed.example/" + strings.TrimPrefix(raw, "s3://"), nil
	}
	return raw, nil
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content model.Content
		want    RouteKind
	}{
		{"alternate player video", model.Content{Type: model.KindVideo, PlayerType: model.RoutingAlternatePlayer}, RouteExternal},
		{"internal video", model.Content{Type: model.KindVideo, PlayerType: model.RoutingInternal}, RoutePlayer},
		{"untagged video", model.Content{Type: model.KindVideo}, RoutePlayer},
		{"pdf", model.Content{Type: model.KindPDF}, RouteExternal},
		{"document tagged for alternate player", model.Content{Type: model.KindDocument, PlayerType: model.RoutingAlternatePlayer}, RouteExternal},
		{"unknown kind", model.Content{Type: "slides"}, RouteExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.content); got.Kind != tt.want {
				t.Errorf("Classify() kind = %v, want %v", got.Kind, tt.want)
			}
		})
	}
}

func TestDispatchAlternatePlayerNeverOpensEngine(t *testing.T) {
	o := &recordingOpener{}
	d := New(o, nil)
	c := model.Content{ID: "v1", Name: "Lecture 1", Type: model.KindVideo, URL: "https://alt/1", PlayerType: model.RoutingAlternatePlayer}

	route, err := d.Dispatch(context.Background(), c)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if route.Kind != RouteExternal || len(o.player) != 0 || len(o.external) != 1 || o.external[0] != "https://alt/1" {
		t.Fatalf("route = %+v, opener = %+v", route, o)
	}
}

func TestDispatchInternalVideoOpensLecture(t *testing.T) {
	o := &recordingOpener{}
	d := New(o, nil)
	c := model.Content{ID: "v2", Name: "Lecture 2", Type: model.KindVideo, URL: "https://cdn/2.m3u8", PlayerType: model.RoutingInternal}

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(context.Background(), c); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}
	if len(o.external) != 0 || len(o.player) != 2 {
		t.Fatalf("opener = %+v, want two player opens", o)
	}
	want := PlayerRequest{URL: "https://cdn/2.m3u8", Title: "Lecture 2", Type: model.PlaybackLecture}
	if o.player[1] != want {
		t.Errorf("player request = %+v, want %+v", o.player[1], want)
	}
}

func TestDispatchResolvesS3URLs(t *testing.T) {
	o := &recordingOpener{}
	d := New(o, prefixResolver{})
	c := model.Content{ID: "p1", Type: model.KindPDF, URL: "s3://notes/ch1.pdf"}

	route, err := d.Dispatch(context.Background(), c)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if route.URL != "https://signed.example/notes/ch1.pdf" || o.external[0] != route.URL {
		t.Errorf("route URL = %q, opened %v", route.URL, o.external)
	}
}

func TestDispatchWrapsOpenerError(t *testing.T) {
	boom := errors.New("popup blocked")
	d := New(&recordingOpener{err: boom}, nil)
	_, err := d.Dispatch(context.Background(), model.Content{Type: model.KindPDF, URL: "https://x"})
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want wrapping %v", err, boom)
	}
}

func TestJoinURL(t *testing.T) {
	l := DefaultLinks()
	tests := []struct {
		name   string
		target JoinTarget
		want   string
	}{
		{"stream url wins", JoinTarget{StreamURL: "https://cdn.example/live/a b.m3u8?x=1", ExternalMeetingLink: "https://meet/x"},
			DefaultPlayerOrigin + "/live/https%3A%2F%2Fcdn.example%2Flive%2Fa%20b.m3u8%3Fx%3D1"},
		{"unreserved marks kept", JoinTarget{StreamURL: "https://cdn.example/(a)!*'~_.m3u8"},
			DefaultPlayerOrigin + "/live/https%3A%2F%2Fcdn.example%2F(a)!*'~_.m3u8"},
		{"non-ascii bytes escaped", JoinTarget{StreamURL: "https://cdn.example/é.m3u8"},
			DefaultPlayerOrigin + "/live/https%3A%2F%2Fcdn.example%2F%C3%A9.m3u8"},
		{"meeting link verbatim", JoinTarget{ExternalMeetingLink: "https://meet.example/abc?pwd=1"}, "https://meet.example/abc?pwd=1"},
		{"fallback", JoinTarget{}, DefaultFallbackURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.JoinURL(tt.target); got != tt.want {
				t.Errorf("JoinURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
