package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryBackend keeps documents in process memory. State is lost on restart;
// it backs tests and single-node development.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *MemoryBackend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := collection + "/"
	out := make(map[string][]byte)
	for key, data := range m.docs {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = data
		}
	}
	return out, nil
}

func (m *MemoryBackend) Update(ctx context.Context, key string, fn func(current []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := fn(m.docs[key])
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.docs, key)
	} else {
		m.docs[key] = next
	}
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}
