package vectorstore

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pdfchat/internal/model"
)

// PGVectorStore keeps all namespaces in one postgres table keyed by
// (namespace, id) and ranks by cosine distance.
type PGVectorStore struct {
	db *gorm.DB
}

func NewPGVectorStore(db *gorm.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

func (s *PGVectorStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	if err := db.AutoMigrate(&model.VectorRecord{}); err != nil {
		return fmt.Errorf("migrate vector records failed: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]model.VectorRecord, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return ErrEmptyVector
		}
		rows = append(rows, model.VectorRecord{
			Namespace:  namespace,
			ID:         r.ID,
			Embedding:  pgvector.NewVector(r.Vector),
			PageNumber: r.PageNumber,
			Text:       r.Text,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding", "page_number", "text"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert vector records failed: %w", err)
	}
	return nil
}

func (s *PGVectorStore) Query(ctx context.Context, namespace string, vector []float32, k int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 {
		return nil, nil
	}

	query := pgvector.NewVector(vector)
	var rows []struct {
		ID         string
		PageNumber int
		Text       string
		Score      float64
	}
	err := s.db.WithContext(ctx).
		Model(&model.VectorRecord{}).
		Select("id, page_number, text, 1 - (embedding <=> ?) AS score", query).
		Where("namespace = ?", namespace).
		Order(gorm.Expr("embedding <=> ?", query)).
		Limit(k).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query vector records failed: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, Match{ID: r.ID, Score: r.Score, PageNumber: r.PageNumber, Text: r.Text})
	}
	return matches, nil
}

func (s *PGVectorStore) DeleteNamespace(ctx context.Context, namespace string) error {
	err := s.db.WithContext(ctx).Where("namespace = ?", namespace).Delete(&model.VectorRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete vector namespace failed: %w", err)
	}
	return nil
}
