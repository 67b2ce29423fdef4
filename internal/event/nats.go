// Package event provides NATS JetStream publishing of catalog engine events.
// Navigation, dispatch and playback activity is streamed for analytics and audit.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/edumaster/catalogd/internal/model"
)

// Publisher defines the event publishing operations required by the catalog service.
type Publisher interface {
	PublishNavigation(ctx context.Context, ev model.NavigationEvent) error
	PublishDispatch(ctx context.Context, ev model.DispatchEvent) error
	PublishPlayback(ctx context.Context, ev model.PlaybackEvent) error
	PublishLivePhase(ctx context.Context, ev model.LivePhaseEvent) error

	// Close closes the publisher connection
	Close() error
}

// Noop is a Publisher that drops every event. It is used when NATS is not configured.
type Noop struct{}

func (Noop) PublishNavigation(ctx context.Context, ev model.NavigationEvent) error { return nil }
func (Noop) PublishDispatch(ctx context.Context, ev model.DispatchEvent) error { return nil }
func (Noop) PublishPlayback(ctx context.Context, ev model.PlaybackEvent) error { return nil }
func (Noop) PublishLivePhase(ctx context.Context, ev model.LivePhaseEvent) error { return nil }
func (Noop) Close() error { return nil }

// Subjects and stream names.
const (
	StreamName = "CATALOG_ACTIVITY"

	SubjectNavigation = "catalog.navigation.transition"
	SubjectDispatch   = "catalog.dispatch.routed"
	SubjectPlayback   = "catalog.playback.phase"
	SubjectLivePhase  = "catalog.live.phase"

	// playbackDedupWindow collapses repeated identical phase reports
	// (e.g. a buffering loop) into one event.
	playbackDedupWindow = 2 * time.Second
)

// jetStream is the part of nats.JetStreamContext the publisher uses.
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc  *nats.Conn // nil in tests
	js  jetStream
	now func() time.Time

	dedup map[string]time.Time // playback session+phase -> last publish time
	mutex sync.Mutex
}

// NewPublisher connects to url and returns a JetStream publisher.
// If url is empty or the connection fails, it returns a Noop publisher.
func NewPublisher(url string) Publisher {
	if url == "" {
		return Noop{}
	}

	nc, err := nats.Connect(url, nats.Name("catalogd"))
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return Noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return Noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return Noop{}
	}

	return newNatsPub(nc, js)
}

func newNatsPub(nc *nats.Conn, js jetStream) *natsPub {
	return &natsPub{nc: nc, js: js, now: time.Now, dedup: make(map[string]time.Time)}
}

// initStreams creates the activity stream if it does not exist.
func initStreams(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"catalog.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Discard:   nats.DiscardOld,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}
	return nil
}

// EventEnvelope is the standard wrapper of every published event.
type EventEnvelope struct {
	Type          string      `json:"type"`          // Event type identifier
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Correlation ID for tracing
	Payload       interface{} `json:"payload"`       // Event-specific data
}

// Close closes the NATS connection.
func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func (p *natsPub) PublishNavigation(ctx context.Context, ev model.NavigationEvent) error {
	return p.publish(ctx, SubjectNavigation, ev.OccurredAt, ev)
}

func (p *natsPub) PublishDispatch(ctx context.Context, ev model.DispatchEvent) error {
	return p.publish(ctx, SubjectDispatch, ev.OccurredAt, ev)
}

func (p *natsPub) PublishLivePhase(ctx context.Context, ev model.LivePhaseEvent) error {
	return p.publish(ctx, SubjectLivePhase, ev.OccurredAt, ev)
}

// PublishPlayback publishes a phase change, skipping repeats of the same
// session and phase within playbackDedupWindow.
func (p *natsPub) PublishPlayback(ctx context.Context, ev model.PlaybackEvent) error {
	key := ev.SessionID + ":" + ev.Phase
	if p.shouldDedup(key) {
		return nil
	}
	if err := p.publish(ctx, SubjectPlayback, ev.OccurredAt, ev); err != nil {
		return err
	}
	p.updateDedup(key)
	return nil
}

func (p *natsPub) publish(ctx context.Context, subject string, at time.Time, payload interface{}) error {
	if at.IsZero() {
		at = p.now()
	}
	envelope := EventEnvelope{
		Type:          subject,
		Version:       "1.0.0",
		OccurredAt:    at.UTC(),
		CorrelationID: correlationID(ctx),
		Payload:       payload,
	}

	b, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, b, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// shouldDedup reports whether key was published within the dedup window.
func (p *natsPub) shouldDedup(key string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	last, exists := p.dedup[key]
	return exists && p.now().Sub(last) < playbackDedupWindow
}

// updateDedup records key as published now and evicts stale entries.
func (p *natsPub) updateDedup(key string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	now := p.now()
	cutoff := now.Add(-5 * time.Minute)
	for k, t := range p.dedup {
		if t.Before(cutoff) {
			delete(p.dedup, k)
		}
	}
	p.dedup[key] = now
}

type correlationKey struct{}

// WithCorrelationID attaches the request correlation id to ctx so published
// events can be traced back to the request that caused them.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}
