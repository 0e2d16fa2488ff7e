package rag

import "errors"

var (
	ErrSourceUnavailable    = errors.New("source document unavailable")
	ErrExtractionFailed     = errors.New("text extraction failed")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrEmbeddingEmpty       = errors.New("embedding is empty")
	ErrIndexUpsertFailed    = errors.New("vector index upsert failed")
	ErrIndexQueryFailed     = errors.New("vector index query failed")
)
