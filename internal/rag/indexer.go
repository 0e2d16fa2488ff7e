package rag

import (
	"context"
	"fmt"
	"time"

	"pdfchat/internal/vectorstore"
)

// indexer addresses a vectorstore by namespace, bounds every call with a
// timeout and splits large upserts into sub-batches.
type indexer struct {
	store     vectorstore.Store
	batchSize int
	timeout   time.Duration
}

// upsert is not transactional across batches. A failed run can simply be
// repeated because record ids are content hashes.
func (ix indexer) upsert(ctx context.Context, namespace string, records []vectorstore.Record) error {
	for start := 0; start < len(records); start += ix.batchSize {
		end := min(start+ix.batchSize, len(records))
		if err := ix.upsertBatch(ctx, namespace, records[start:end]); err != nil {
			return fmt.Errorf("%w: batch %d-%d: %w", ErrIndexUpsertFailed, start, end, err)
		}
	}
	return nil
}

func (ix indexer) upsertBatch(ctx context.Context, namespace string, batch []vectorstore.Record) error {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()
	return ix.store.Upsert(ctx, namespace, batch)
}

func (ix indexer) query(ctx context.Context, namespace string, vector []float32, k int) ([]vectorstore.Match, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	matches, err := ix.store.Query(ctx, namespace, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexQueryFailed, err)
	}
	return matches, nil
}

func (ix indexer) deleteNamespace(ctx context.Context, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	if err := ix.store.DeleteNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("%w: delete namespace: %w", ErrIndexUpsertFailed, err)
	}
	return nil
}
