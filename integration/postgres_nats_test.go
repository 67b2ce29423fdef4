// Package integration runs the conformance suite against PostgreSQL and NATS.
// The tests are skipped unless CATALOG_TEST_DATABASE_URL is set.
package integration

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/edumaster/catalogd/conformance"
	"github.com/edumaster/catalogd/internal/event"
	"github.com/edumaster/catalogd/internal/storage"
)

// subjectRecorder collects envelopes published on the activity subjects.
type subjectRecorder struct {
	mu        sync.Mutex
	envelopes map[string][]event.EventEnvelope
}

func (r *subjectRecorder) handle(msg *nats.Msg) {
	var env event.EventEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes[msg.Subject] = append(r.envelopes[msg.Subject], env)
}

func (r *subjectRecorder) get(subject string) []event.EventEnvelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.EventEnvelope(nil), r.envelopes[subject]...)
}

func TestPostgresBackedConformance(t *testing.T) {
	dsn := os.Getenv("CATALOG_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CATALOG_TEST_DATABASE_URL not set")
	}

	store, err := storage.NewPostgres(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	cfg := conformance.Config{Store: store}

	var rec *subjectRecorder
	if natsURL := os.Getenv("CATALOG_TEST_NATS_URL"); natsURL != "" {
		nc, err := nats.Connect(natsURL, nats.Name("catalogd-integration"))
		if err != nil {
			t.Fatalf("failed to connect to nats: %v", err)
		}
		defer nc.Close()

		rec = &subjectRecorder{envelopes: make(map[string][]event.EventEnvelope)}
		sub, err := nc.Subscribe("catalog.>", rec.handle)
		if err != nil {
			t.Fatalf("failed to subscribe: %v", err)
		}
		defer sub.Unsubscribe()

		pub := event.NewPublisher(natsURL)
		defer pub.Close()
		cfg.Publisher = pub
	}

	harness, err := conformance.NewHarness(cfg)
	if err != nil {
		t.Fatalf("failed to create harness: %v", err)
	}
	defer harness.Close()

	harness.RunConformanceTests(t)

	if rec == nil {
		return
	}
	for _, subject := range []string{event.SubjectNavigation, event.SubjectDispatch, event.SubjectPlayback, event.SubjectLivePhase} {
		deadline := time.Now().Add(5 * time.Second)
		for len(rec.get(subject)) == 0 && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		envs := rec.get(subject)
		if len(envs) == 0 {
			t.Errorf("no events on %s", subject)
			continue
		}
		if envs[0].Version == "" || envs[0].Type == "" {
			t.Errorf("%s envelope = %+v", subject, envs[0])
		}
	}
}
