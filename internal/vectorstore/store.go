// Package vectorstore holds the nearest-neighbour indexes that back document
// retrieval. Every record lives in exactly one namespace and namespaces never
// see each other's records.
package vectorstore

import (
	"context"
	"errors"
)

var ErrEmptyVector = errors.New("vector is empty")

// Record is one indexed chunk. ID is the chunk content hash.
type Record struct {
	ID         string
	Vector     []float32
	PageNumber int
	Text       string
}

// Match is a query hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	PageNumber int     `json:"pageNumber"`
	Text       string  `json:"text"`
}

// Store is implemented by every vector backend. Upsert replaces records with
// an existing ID; Query returns at most k matches ordered by descending score.
type Store interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}
