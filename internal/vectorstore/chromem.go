package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const metaPage = "page"

var errNoEmbeddingFunc = errors.New("chromem collections only accept precomputed embeddings")

// ChromemStore keeps one chromem collection per namespace in an embedded,
// file-persisted database.
type ChromemStore struct {
	db *chromem.DB
}

func NewChromemStore(path string, compress bool) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, fmt.Errorf("open chromem db failed: %w", err)
	}
	return &ChromemStore{db: db}, nil
}

// Embeddings always come from the caller. The function only guards against
// chromem falling back to its default remote embedder.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	collection, err := s.db.GetOrCreateCollection(namespace, map[string]string{"hnsw:space": "cosine"}, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("get chromem collection failed: %w", err)
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return ErrEmptyVector
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Metadata:  map[string]string{metaPage: strconv.Itoa(r.PageNumber)},
			Embedding: r.Vector,
			Content:   r.Text,
		})
	}
	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add chromem documents failed: %w", err)
	}
	return nil
}

func (s *ChromemStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	collection := s.db.GetCollection(namespace, rejectEmbedding)
	if collection == nil || k <= 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection.
	n := min(k, collection.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := collection.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query chromem collection failed: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		page, _ := strconv.Atoi(r.Metadata[metaPage])
		matches = append(matches, Match{
			ID:         r.ID,
			Score:      float64(r.Similarity),
			PageNumber: page,
			Text:       r.Content,
		})
	}
	return matches, nil
}

func (s *ChromemStore) DeleteNamespace(_ context.Context, namespace string) error {
	if err := s.db.DeleteCollection(namespace); err != nil {
		return fmt.Errorf("delete chromem collection failed: %w", err)
	}
	return nil
}
