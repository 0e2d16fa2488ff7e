package handler

import (
	"strconv"
	"time"

	"pdfchat/internal/model"
)

type messageDTO struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type chatDTO struct {
	ID        uint      `json:"id"`
	PDFName   string    `json:"pdfName"`
	FileKey   string    `json:"fileKey"`
	CreatedAt time.Time `json:"createdAt"`
}

func toMessageDTO(msg model.Message) messageDTO {
	return messageDTO{
		ID:        strconv.FormatUint(uint64(msg.ID), 10),
		Role:      msg.Role,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.UTC(),
	}
}

func toMessageDTOs(messages []model.Message) []messageDTO {
	out := make([]messageDTO, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toMessageDTO(msg))
	}
	return out
}

func toChatDTO(chat model.Chat) chatDTO {
	return chatDTO{
		ID:        chat.ID,
		PDFName:   chat.PDFName,
		FileKey:   chat.FileKey,
		CreatedAt: chat.CreatedAt.UTC(),
	}
}
