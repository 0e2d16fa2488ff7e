package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"pdfchat/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreatePair writes a user message and the assistant answer in one
// transaction. Both rows share one timestamp; the insert order, and so the
// id, breaks the tie when a chat is listed.
func (r *MessageRepository) CreatePair(ctx context.Context, user, assistant *model.Message) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	assistant.CreatedAt = user.CreatedAt

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("create user message failed: %w", err)
		}
		if err := tx.Create(assistant).Error; err != nil {
			return fmt.Errorf("create assistant message failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create message pair failed: %w", err)
	}
	return nil
}

// ListByChatID returns every message of a chat in conversation order.
func (r *MessageRepository) ListByChatID(ctx context.Context, chatID uint) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	return messages, nil
}
