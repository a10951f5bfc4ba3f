package objectclient

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// MemoryStore keeps objects in process. Tests use it in place of S3.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	types   map[string]string
}

var _ core.ObjectClient = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
	}
}

func (m *MemoryStore) UploadFile(_ context.Context, key string, data io.Reader, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = buf.Bytes()
	m.types[key] = contentType
	return nil
}

func (m *MemoryStore) GetFile(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, core.NotFoundf("object %s", key)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (m *MemoryStore) DeleteFile(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	delete(m.types, key)
	return nil
}

// Has reports whether key is stored.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}
