package model

import "time"

// Chat binds one uploaded document to its owner. Messages reference the chat,
// never the other way round.
type Chat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	FileKey   string    `gorm:"size:512;not null;index" json:"file_key"`
	PDFName   string    `gorm:"size:256;not null" json:"pdf_name"`
	CreatedAt time.Time `json:"created_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
