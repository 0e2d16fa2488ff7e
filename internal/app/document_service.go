package app

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/model"
	"pdfchat/internal/rag"
)

var pdfMagic = []byte("%PDF-")

type DocumentStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
	Fetch(ctx context.Context, fileKey string) ([]byte, error)
	Delete(ctx context.Context, fileKey string) error
}

type DocumentIngester interface {
	Ingest(ctx context.Context, fileKey string) ([]rag.Chunk, error)
	Delete(ctx context.Context, fileKey string) error
}

type IngestQueue interface {
	Enqueue(ctx context.Context, job model.IngestJob) error
}

type CreateChatInput struct {
	UserID   uint
	FileName string
	Data     []byte
}

type CreateChatResult struct {
	Chat      *model.Chat
	FirstPage []rag.Chunk
}

// DocumentService owns the lifecycle of a chat's source document: upload,
// ingestion, download and re-indexing.
type DocumentService struct {
	chats    ChatStore
	docs     DocumentStore
	ingester DocumentIngester
	queue    IngestQueue
	maxBytes int64
	log      *zap.Logger
}

func NewDocumentService(
	chats ChatStore,
	docs DocumentStore,
	ingester DocumentIngester,
	queue IngestQueue,
	maxBytes int64,
	log *zap.Logger,
) *DocumentService {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DocumentService{
		chats:    chats,
		docs:     docs,
		ingester: ingester,
		queue:    queue,
		maxBytes: maxBytes,
		log:      log.Named("document"),
	}
}

func (s *DocumentService) MaxBytes() int64 {
	return s.maxBytes
}

// CreateChat stores the upload, indexes it and only then records the chat,
// so a chat is never visible before its document is searchable. When either
// later step fails the upload is discarded again.
func (s *DocumentService) CreateChat(ctx context.Context, input CreateChatInput) (*CreateChatResult, error) {
	name := strings.TrimSpace(filepath.Base(input.FileName))
	if input.UserID == 0 || name == "" || name == "." || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if int64(len(input.Data)) > s.maxBytes {
		return nil, ErrDocumentTooLarge
	}
	if !bytes.HasPrefix(input.Data, pdfMagic) {
		return nil, ErrUnsupportedDocument
	}

	fileKey, err := s.docs.Store(ctx, name, input.Data)
	if err != nil {
		return nil, fmt.Errorf("store document failed: %w", err)
	}

	firstPage, err := s.ingester.Ingest(ctx, fileKey)
	if err != nil {
		s.discard(ctx, fileKey)
		return nil, err
	}

	chat := &model.Chat{
		UserID:  input.UserID,
		FileKey: fileKey,
		PDFName: name,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		s.discard(ctx, fileKey)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}

	s.log.Info("chat created",
		zap.Uint("chat_id", chat.ID),
		zap.Uint("user_id", chat.UserID),
		zap.String("file_key", fileKey),
		zap.Int("first_page_chunks", len(firstPage)),
	)
	return &CreateChatResult{Chat: chat, FirstPage: firstPage}, nil
}

// discard drops the vectors and the stored file of an upload that no chat
// will reference.
func (s *DocumentService) discard(ctx context.Context, fileKey string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.ingester.Delete(ctx, fileKey); err != nil {
		s.log.Warn("drop orphaned namespace failed", zap.String("file_key", fileKey), zap.Error(err))
	}
	if err := s.docs.Delete(ctx, fileKey); err != nil {
		s.log.Warn("discard orphaned document failed", zap.String("file_key", fileKey), zap.Error(err))
	}
}

// OpenDocument returns the chat and the raw bytes of its source document.
func (s *DocumentService) OpenDocument(ctx context.Context, userID, chatID uint) (*model.Chat, []byte, error) {
	chat, err := authorizeChat(ctx, s.chats, userID, chatID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.docs.Fetch(ctx, chat.FileKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", rag.ErrSourceUnavailable, err)
	}
	return chat, data, nil
}

// Reindex rebuilds the chat's vector namespace. With a queue the job is
// handed to a worker and queued is true; without one it runs inline.
func (s *DocumentService) Reindex(ctx context.Context, userID, chatID uint) (queued bool, err error) {
	chat, err := authorizeChat(ctx, s.chats, userID, chatID)
	if err != nil {
		return false, err
	}

	job := model.IngestJob{
		ChatID:      chat.ID,
		FileKey:     chat.FileKey,
		RequestedBy: userID,
		RequestedAt: time.Now(),
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			return false, fmt.Errorf("enqueue ingest job failed: %w", err)
		}
		return true, nil
	}
	return false, s.HandleIngestJob(ctx, job)
}

// HandleIngestJob runs a queued ingestion. Jobs whose chat is gone or whose
// file key no longer matches are dropped.
func (s *DocumentService) HandleIngestJob(ctx context.Context, job model.IngestJob) error {
	chat, err := s.chats.GetByID(ctx, job.ChatID)
	if err != nil {
		return err
	}
	if chat == nil || chat.FileKey != job.FileKey {
		s.log.Warn("stale ingest job dropped", zap.Uint("chat_id", job.ChatID), zap.String("file_key", job.FileKey))
		return nil
	}

	chunks, err := s.ingester.Ingest(ctx, job.FileKey)
	if err != nil {
		return err
	}
	s.log.Info("chat reindexed", zap.Uint("chat_id", chat.ID), zap.Int("first_page_chunks", len(chunks)))
	return nil
}
