package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/markdave123-py/contexta-chat/internal/core"
)

// MemoryIndex is an in-process cosine-similarity index. It is used for local
// runs without pgvector and in tests.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]core.VectorRecord
}

var _ core.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]map[string]core.VectorRecord)}
}

func (m *MemoryIndex) Upsert(_ context.Context, namespace string, records []core.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]core.VectorRecord)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		vals := make([]float32, len(r.Values))
		copy(vals, r.Values)
		r.Values = vals
		ns[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Query(_ context.Context, namespace string, vector []float32, topK int) ([]core.VectorMatch, error) {
	if topK <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns := m.namespaces[namespace]
	out := make([]core.VectorMatch, 0, len(ns))
	for id, r := range ns {
		out = append(out, core.VectorMatch{
			ID:       id,
			Score:    cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (m *MemoryIndex) Delete(_ context.Context, namespace string, filter core.VectorFilter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		return nil
	}
	if filter.DocumentID == "" {
		delete(m.namespaces, namespace)
		return nil
	}
	for id, r := range ns {
		if r.Metadata.DocumentID == filter.DocumentID {
			delete(ns, id)
		}
	}
	return nil
}

// Len reports how many records a namespace holds.
func (m *MemoryIndex) Len(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
