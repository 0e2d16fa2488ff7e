package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an exact-search Store kept in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]Record)}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, records []Record) error {
	for _, r := range records {
		if len(r.Vector) == 0 {
			return ErrEmptyVector
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		ns[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, namespace string, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	matches := make([]Match, 0, len(s.namespaces[namespace]))
	for _, r := range s.namespaces[namespace] {
		matches = append(matches, Match{
			ID:         r.ID,
			Score:      cosine(vector, r.Vector),
			PageNumber: r.PageNumber,
			Text:       r.Text,
		})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *MemoryStore) DeleteNamespace(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

// Count reports how many records a namespace holds.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// IDs lists the record ids of a namespace in sorted order.
func (s *MemoryStore) IDs(namespace string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.namespaces[namespace]))
	for id := range s.namespaces[namespace] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// cosine returns 0 for mismatched dimensions or zero vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
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
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
