// internal/storage/memory.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/edumaster/catalogd/internal/model"
)

// memory implements the Store interface using in-memory storage.
// It's intended for development, seeded demos and tests.
type memory struct {
	mu          sync.RWMutex
	batches     map[string]model.Batch         // batch id -> batch with folder tree
	liveClasses map[string]model.LiveClass     // live class id -> record
	goLive      map[string]model.GoLiveSession // session id -> record
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() Store {
	return &memory{
		batches:     make(map[string]model.Batch),
		liveClasses: make(map[string]model.LiveClass),
		goLive:      make(map[string]model.GoLiveSession),
	}
}

func (m *memory) PutBatch(ctx context.Context, b model.Batch) error {
	if b.ID == "" {
		return ErrInvalid
	}
	cp, err := cloneBatch(b)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[b.ID] = cp
	return nil
}

func (m *memory) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	m.mu.RLock()
	b, exists := m.batches[id]
	m.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}
	cp, err := cloneBatch(b)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *memory) ListBatches(ctx context.Context) ([]model.Batch, error) {
	m.mu.RLock()
	out := make([]model.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, b)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	for i := range out {
		cp, err := cloneBatch(out[i])
		if err != nil {
			return nil, err
		}
		out[i] = cp
	}
	return out, nil
}

func (m *memory) PutLiveClass(ctx context.Context, lc model.LiveClass) error {
	if lc.ID == "" {
		return ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liveClasses[lc.ID] = lc
	return nil
}

func (m *memory) ListLiveClasses(ctx context.Context) ([]model.LiveClass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.LiveClass, 0, len(m.liveClasses))
	for _, lc := range m.liveClasses {
		out = append(out, lc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

func (m *memory) PutGoLiveSession(ctx context.Context, s model.GoLiveSession) error {
	if s.ID == "" {
		return ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.goLive[s.ID] = s
	return nil
}

func (m *memory) ListGoLiveSessions(ctx context.Context) ([]model.GoLiveSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.GoLiveSession, 0, len(m.goLive))
	for _, s := range m.goLive {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func (m *memory) Ping(ctx context.Context) error { return nil }

func (m *memory) Close() {}

// cloneBatch deep-copies a batch so callers never share folder slices with the store.
func cloneBatch(b model.Batch) (model.Batch, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return model.Batch{}, fmt.Errorf("copy batch %s: %w", b.ID, err)
	}
	var cp model.Batch
	if err := json.Unmarshal(raw, &cp); err != nil {
		return model.Batch{}, fmt.Errorf("copy batch %s: %w", b.ID, err)
	}
	return cp, nil
}
