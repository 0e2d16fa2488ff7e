package model

import "github.com/pgvector/pgvector-go"

// VectorRecord is the pgvector row for one indexed chunk. ID is the chunk
// content hash, so re-ingesting a document overwrites rather than duplicates.
type VectorRecord struct {
	Namespace  string          `gorm:"primaryKey;size:128"`
	ID         string          `gorm:"primaryKey;size:64"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	PageNumber int             `gorm:"not null"`
	Text       string          `gorm:"type:text;not null"`
}

func (VectorRecord) TableName() string {
	return "vector_records"
}
