package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory keeps entries in process. Tests and single-node development use it.
type Memory struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	copied := *entry
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *Memory) List(_ context.Context, entityID string, limit int64) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*Entry{}
	for _, e := range m.entries {
		if e.EntityID == entityID {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
