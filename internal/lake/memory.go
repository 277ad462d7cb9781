package lake

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and by the CLI when
// no lake bucket is configured, avoiding a live S3-compatible endpoint.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]Blob
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Blob)}
}

func (m *MemoryStore) Upload(_ context.Context, symbol string, asOf time.Time, seq int64, blob Blob) (string, error) {
	key := Key(symbol, asOf, seq)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = blob
	return key, nil
}

func (m *MemoryStore) List(_ context.Context, symbol string, date time.Time) ([]string, error) {
	u := date.UTC()
	prefix := fmt.Sprintf("ticks/%s/%04d/%02d/%02d/", symbol, u.Year(), u.Month(), u.Day())

	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// WalkAll returns every key currently stored, sorted.
func (m *MemoryStore) WalkAll(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.objects[key]
	if !ok {
		return Blob{}, fmt.Errorf("lake: no object at key %s", key)
	}
	return blob, nil
}
