package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/edumaster/catalogd/internal/model"
)

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	msgs []published
	err  error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, published{subj, data})
	return &nats.PubAck{Stream: StreamName, Sequence: uint64(len(f.msgs))}, nil
}

func TestNewPublisherWithoutURLIsNoop(t *testing.T) {
	p := NewPublisher("")
	if _, ok := p.(Noop); !ok {
		t.Fatalf("NewPublisher(\"\") = %T, want Noop", p)
	}
	if err := p.PublishNavigation(context.Background(), model.NavigationEvent{}); err != nil {
		t.Errorf("noop publish error = %v", err)
	}
}

func TestPublishEnvelope(t *testing.T) {
	js := &fakeJetStream{}
	p := newNatsPub(nil, js)
	ctx := WithCorrelationID(context.Background(), "req-1")
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	err := p.PublishNavigation(ctx, model.NavigationEvent{SessionID: "n1", Action: "enter", FolderID: "f1", ActiveIndex: 1, OccurredAt: at})
	if err != nil {
		t.Fatalf("PublishNavigation() error = %v", err)
	}
	if len(js.msgs) != 1 || js.msgs[0].subject != SubjectNavigation {
		t.Fatalf("published = %+v", js.msgs)
	}

	var env struct {
		Type          string                `json:"type"`
		CorrelationID string                `json:"correlationId"`
		OccurredAt    time.Time             `json:"occurredAt"`
		Payload       model.NavigationEvent `json:"payload"`
	}
	if err := json.Unmarshal(js.msgs[0].data, &env); err != nil {
		t.Fatalf("envelope decode: %v", err)
	}
	if env.Type != SubjectNavigation || env.CorrelationID != "req-1" || !env.OccurredAt.Equal(at) || env.Payload.FolderID != "f1" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestPublishLivePhase(t *testing.T) {
	js := &fakeJetStream{}
	p := newNatsPub(nil, js)
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	ev := model.LivePhaseEvent{ClassID: "c1", From: "upcoming", Phase: "ready", OccurredAt: at}
	if err := p.PublishLivePhase(context.Background(), ev); err != nil {
		t.Fatalf("PublishLivePhase() error = %v", err)
	}
	if len(js.msgs) != 1 || js.msgs[0].subject != SubjectLivePhase {
		t.Fatalf("published = %+v", js.msgs)
	}
	var env struct {
		Payload model.LivePhaseEvent `json:"payload"`
	}
	if err := json.Unmarshal(js.msgs[0].data, &env); err != nil {
		t.Fatalf("envelope decode: %v", err)
	}
	if got := env.Payload; got.ClassID != "c1" || got.From != "upcoming" || got.Phase != "ready" || !got.OccurredAt.Equal(at) {
		t.Errorf("payload = %+v, want %+v", env.Payload, ev)
	}
}

func TestPlaybackDedup(t *testing.T) {
	js := &fakeJetStream{}
	p := newNatsPub(nil, js)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	ctx := context.Background()

	ev := model.PlaybackEvent{SessionID: "p1", Phase: "loading"}
	_ = p.PublishPlayback(ctx, ev)
	_ = p.PublishPlayback(ctx, ev)
	_ = p.PublishPlayback(ctx, model.PlaybackEvent{SessionID: "p1", Phase: "playing"})
	if len(js.msgs) != 2 {
		t.Fatalf("published %d events, want 2", len(js.msgs))
	}

	now = now.Add(playbackDedupWindow)
	_ = p.PublishPlayback(ctx, ev)
	if len(js.msgs) != 3 {
		t.Fatalf("event after dedup window not published")
	}
}

func TestPublishErrorIsWrapped(t *testing.T) {
	boom := errors.New("no responders")
	p := newNatsPub(nil, &fakeJetStream{err: boom})
	err := p.PublishDispatch(context.Background(), model.DispatchEvent{ContentID: "c1", Route: "external"})
	if !errors.Is(err, boom) {
		t.Fatalf("PublishDispatch() error = %v", err)
	}
	// failed playback publishes are not remembered for dedup
	ev := model.PlaybackEvent{SessionID: "p1", Phase: "error"}
	_ = p.PublishPlayback(context.Background(), ev)
	if p.shouldDedup("p1:error") {
		t.Errorf("failed publish recorded for dedup")
	}
}
