package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"pdfchat/internal/ai"
	"pdfchat/internal/vectorstore"
)

const fakeDims = 512

// wordEmbedder is a bag-of-words embedder: texts sharing words point the
// same way, unrelated texts are close to orthogonal.
type wordEmbedder struct {
	mu     sync.Mutex
	inputs []string
	err    error
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.inputs = append(e.inputs, text)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}

	vec := make([]float32, fakeDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%fakeDims]++
	}
	return vec, nil
}

func (e *wordEmbedder) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

type emptyEmbedder struct{}

func (emptyEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{}, nil
}

type memorySource map[string][]byte

func (s memorySource) Fetch(_ context.Context, fileKey string) ([]byte, error) {
	data, ok := s[fileKey]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

// formFeedExtractor treats the document bytes as plain text with one page
// per form feed.
type formFeedExtractor struct{}

func (formFeedExtractor) Extract(data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	parts := strings.Split(string(data), "\f")
	pages := make([]Page, len(parts))
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, Text: p}
	}
	return pages, nil
}

// recordingStore counts upsert calls and can fail on demand.
type recordingStore struct {
	*vectorstore.MemoryStore
	mu          sync.Mutex
	batchSizes  []int
	failUpserts bool
	failQueries bool
	fixed       []vectorstore.Match
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: vectorstore.NewMemoryStore()}
}

func (s *recordingStore) Upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	s.mu.Lock()
	s.batchSizes = append(s.batchSizes, len(records))
	s.mu.Unlock()
	if s.failUpserts {
		return errors.New("index unavailable")
	}
	return s.MemoryStore.Upsert(ctx, namespace, records)
}

func (s *recordingStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]vectorstore.Match, error) {
	if s.failQueries {
		return nil, errors.New("index unavailable")
	}
	if s.fixed != nil {
		out := append([]vectorstore.Match(nil), s.fixed...)
		if len(out) > k {
			out = out[:k]
		}
		return out, nil
	}
	return s.MemoryStore.Query(ctx, namespace, vector, k)
}

var _ ai.Embedder = (*wordEmbedder)(nil)
