// Package storage provides implementations of the catalog Store interface
// for both in-memory and PostgreSQL storage backends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/edumaster/catalogd/internal/metrics"
	"github.com/edumaster/catalogd/internal/model"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found")      // Returned when a batch or folder is not found
	ErrInvalid  = errors.New("invalid record") // Returned when a record has no identifier
)

// Store defines the catalog operations required by the service.
// Batches own their folder trees; live classes and go-live sessions are flat lists.
type Store interface {
	// Batch operations; a batch is stored together with its folder tree
	PutBatch(ctx context.Context, b model.Batch) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error) // oldest first

	// Live class schedule records, ordered by scheduled start
	PutLiveClass(ctx context.Context, lc model.LiveClass) error
	ListLiveClasses(ctx context.Context) ([]model.LiveClass, error)

	// Go-live sessions, most recent first
	PutGoLiveSession(ctx context.Context, s model.GoLiveSession) error
	ListGoLiveSessions(ctx context.Context) ([]model.GoLiveSession, error)

	Ping(ctx context.Context) error
	Close()
}

// FindFolder resolves folderID within the batch's tree.
// It returns ErrNotFound when either identifier does not resolve.
func FindFolder(ctx context.Context, s Store, batchID, folderID string) (*model.Batch, *model.Folder, error) {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, nil, err
	}
	f, ok := model.FindFolder(b.Folders, folderID)
	if !ok {
		return b, nil, fmt.Errorf("folder %s in batch %s: %w", folderID, batchID, ErrNotFound)
	}
	return b, f, nil
}

// Seed is the on-disk shape of a catalog snapshot.
type Seed struct {
	Batches        []model.Batch         `json:"batches"`
	LiveClasses    []model.LiveClass     `json:"liveClasses"`
	GoLiveSessions []model.GoLiveSession `json:"goLiveSessions"`
}

// LoadSeed reads a JSON catalog snapshot from path and writes it into s.
func LoadSeed(ctx context.Context, s Store, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed %s: %w", path, err)
	}
	return ApplySeed(ctx, s, seed)
}

// ApplySeed writes every record of seed into s.
func ApplySeed(ctx context.Context, s Store, seed Seed) error {
	for _, b := range seed.Batches {
		if err := s.PutBatch(ctx, b); err != nil {
			return fmt.Errorf("seed batch %s: %w", b.ID, err)
		}
	}
	for _, lc := range seed.LiveClasses {
		if err := s.PutLiveClass(ctx, lc); err != nil {
			return fmt.Errorf("seed live class %s: %w", lc.ID, err)
		}
	}
	for _, gl := range seed.GoLiveSessions {
		if err := s.PutGoLiveSession(ctx, gl); err != nil {
			return fmt.Errorf("seed go-live session %s: %w", gl.ID, err)
		}
	}
	return nil
}

// instrumented records storage operation counts and latencies.
type instrumented struct {
	next Store
	m    *metrics.Metrics
}

// Instrument wraps s so every operation is recorded in m.
func Instrument(s Store, m *metrics.Metrics) Store {
	return &instrumented{next: s, m: m}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}
	i.m.StorageOperationTotal.WithLabelValues(op, status).Inc()
	i.m.StorageOperationDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func (i *instrumented) PutBatch(ctx context.Context, b model.Batch) (err error) {
	defer func(start time.Time) { i.observe("put_batch", start, err) }(time.Now())
	return i.next.PutBatch(ctx, b)
}

func (i *instrumented) GetBatch(ctx context.Context, id string) (b *model.Batch, err error) {
	defer func(start time.Time) { i.observe("get_batch", start, err) }(time.Now())
	return i.next.GetBatch(ctx, id)
}

func (i *instrumented) ListBatches(ctx context.Context) (bs []model.Batch, err error) {
	defer func(start time.Time) { i.observe("list_batches", start, err) }(time.Now())
	return i.next.ListBatches(ctx)
}

func (i *instrumented) PutLiveClass(ctx context.Context, lc model.LiveClass) (err error) {
	defer func(start time.Time) { i.observe("put_live_class", start, err) }(time.Now())
	return i.next.PutLiveClass(ctx, lc)
}

func (i *instrumented) ListLiveClasses(ctx context.Context) (lcs []model.LiveClass, err error) {
	defer func(start time.Time) { i.observe("list_live_classes", start, err) }(time.Now())
	return i.next.ListLiveClasses(ctx)
}

func (i *instrumented) PutGoLiveSession(ctx context.Context, s model.GoLiveSession) (err error) {
	defer func(start time.Time) { i.observe("put_go_live_session", start, err) }(time.Now())
	return i.next.PutGoLiveSession(ctx, s)
}

func (i *instrumented) ListGoLiveSessions(ctx context.Context) (ss []model.GoLiveSession, err error) {
	defer func(start time.Time) { i.observe("list_go_live_sessions", start, err) }(time.Now())
	return i.next.ListGoLiveSessions(ctx)
}

func (i *instrumented) Ping(ctx context.Context) error { return i.next.Ping(ctx) }
func (i *instrumented) Close() { i.next.Close() }
