package model

import "time"

// IngestJob asks a worker to (re)build the vector namespace of a document.
type IngestJob struct {
	ChatID      uint      `json:"chat_id"`
	FileKey     string    `json:"file_key"`
	RequestedBy uint      `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
