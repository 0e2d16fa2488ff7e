package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"pdfchat/internal/ai"
	"pdfchat/internal/model"
)

const defaultPersistTimeout = 10 * time.Second

type ChatStore interface {
	Create(ctx context.Context, chat *model.Chat) error
	GetByID(ctx context.Context, id uint) (*model.Chat, error)
	ListByUserID(ctx context.Context, userID uint) ([]model.Chat, error)
}

type MessageStore interface {
	CreatePair(ctx context.Context, user, assistant *model.Message) error
	ListByChatID(ctx context.Context, chatID uint) ([]model.Message, error)
}

type HistoryCache interface {
	GetHistory(ctx context.Context, chatID uint) ([]model.Message, bool, error)
	// SetHistory must not store anything while the chat is marked dirty,
	// checking and writing atomically.
	SetHistory(ctx context.Context, chatID uint, messages []model.Message) error
	Invalidate(ctx context.Context, chatID uint) error
	IsDirty(ctx context.Context, chatID uint) (bool, error)
}

// TurnLocker grants at most one in-flight turn per chat.
type TurnLocker interface {
	TryLock(ctx context.Context, chatID uint) (func(ctx context.Context) error, bool, error)
}

type ContextRetriever interface {
	GetContext(ctx context.Context, query, fileKey string) (string, error)
}

type PromptRenderer interface {
	Render(context, question string) string
}

// AnswerStream delivers a persisted answer to the client. Send is called
// once, then Done.
type AnswerStream interface {
	Send(msg model.Message) error
	Done() error
}

type TurnState int

const (
	TurnIdle TurnState = iota
	TurnAwaitingContext
	TurnAwaitingGeneration
	TurnPersisting
	TurnStreaming
	TurnComplete
	TurnErrored
)

func (s TurnState) String() string {
	switch s {
	case TurnIdle:
		return "idle"
	case TurnAwaitingContext:
		return "awaiting_context"
	case TurnAwaitingGeneration:
		return "awaiting_generation"
	case TurnPersisting:
		return "persisting"
	case TurnStreaming:
		return "streaming"
	case TurnComplete:
		return "complete"
	case TurnErrored:
		return "errored"
	}
	return fmt.Sprintf("TurnState(%d)", int(s))
}

type TurnMessage struct {
	Role    string
	Content string
}

type TurnInput struct {
	UserID   uint
	ChatID   uint
	Messages []TurnMessage
}

// TurnResult carries the replayed history when the request had no messages,
// otherwise the persisted pair of the new turn.
type TurnResult struct {
	State     TurnState
	Replay    bool
	History   []model.Message
	Question  *model.Message
	Answer    *model.Message
	Retrieved string
}

type ChatServiceConfig struct {
	GenerateTimeout time.Duration
	PersistTimeout  time.Duration
}

type ChatService struct {
	chats     ChatStore
	messages  MessageStore
	history   HistoryCache
	locker    TurnLocker
	retriever ContextRetriever
	prompt    PromptRenderer
	generator ai.Generator
	cfg       ChatServiceConfig
	log       *zap.Logger
}

func NewChatService(
	chats ChatStore,
	messages MessageStore,
	history HistoryCache,
	locker TurnLocker,
	retriever ContextRetriever,
	prompt PromptRenderer,
	generator ai.Generator,
	cfg ChatServiceConfig,
	log *zap.Logger,
) *ChatService {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 90 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		chats:     chats,
		messages:  messages,
		history:   history,
		locker:    locker,
		retriever: retriever,
		prompt:    prompt,
		generator: generator,
		cfg:       cfg,
		log:       log.Named("chat"),
	}
}

func (s *ChatService) ListChats(ctx context.Context, userID uint) ([]model.Chat, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.chats.ListByUserID(ctx, userID)
}

// History returns every message of the chat in conversation order.
func (s *ChatService) History(ctx context.Context, userID, chatID uint) ([]model.Message, error) {
	if _, err := authorizeChat(ctx, s.chats, userID, chatID); err != nil {
		return nil, err
	}
	return s.loadHistory(ctx, chatID)
}

// Turn runs one chat turn. A request without messages replays the history
// and touches neither the retriever nor the generator. Otherwise the last
// message is answered from the document context; the question and answer are
// stored together only after generation succeeded, and only then is the
// answer streamed.
func (s *ChatService) Turn(ctx context.Context, input TurnInput, stream AnswerStream) (*TurnResult, error) {
	result := &TurnResult{State: TurnIdle}
	fail := func(err error) (*TurnResult, error) {
		s.transition(input.ChatID, result, TurnErrored)
		return result, err
	}

	chat, err := authorizeChat(ctx, s.chats, input.UserID, input.ChatID)
	if err != nil {
		return fail(err)
	}

	if len(input.Messages) == 0 {
		history, err := s.loadHistory(ctx, chat.ID)
		if err != nil {
			return fail(err)
		}
		result.Replay = true
		result.History = history
		return result, nil
	}

	question, err := latestQuestion(input.Messages)
	if err != nil {
		return fail(err)
	}

	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, chat.ID)
		if err != nil {
			return fail(fmt.Errorf("acquire turn lock failed: %w", err))
		}
		if !ok {
			return fail(ErrTurnInProgress)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release turn lock failed", zap.Uint("chat_id", chat.ID), zap.Error(err))
			}
		}()
	}

	s.transition(chat.ID, result, TurnAwaitingContext)
	docContext, err := s.retriever.GetContext(ctx, question, chat.FileKey)
	if err != nil {
		return fail(err)
	}
	result.Retrieved = docContext

	// From here on the work finishes even if the client goes away.
	detached := context.WithoutCancel(ctx)

	s.transition(chat.ID, result, TurnAwaitingGeneration)
	answer, err := s.generate(detached, s.prompt.Render(docContext, question))
	if err != nil {
		return fail(err)
	}

	s.transition(chat.ID, result, TurnPersisting)
	userMsg := &model.Message{ChatID: chat.ID, Role: model.RoleUser, Content: question, CreatedAt: time.Now()}
	assistantMsg := &model.Message{ChatID: chat.ID, Role: model.RoleAssistant, Content: answer}
	if err := s.persist(detached, userMsg, assistantMsg); err != nil {
		return fail(err)
	}
	result.Question = userMsg
	result.Answer = assistantMsg

	if stream == nil {
		s.transition(chat.ID, result, TurnComplete)
		return result, nil
	}

	s.transition(chat.ID, result, TurnStreaming)
	if err := stream.Send(*assistantMsg); err != nil {
		return fail(fmt.Errorf("deliver answer failed: %w", err))
	}
	if err := stream.Done(); err != nil {
		return fail(fmt.Errorf("close answer stream failed: %w", err))
	}
	s.transition(chat.ID, result, TurnComplete)
	return result, nil
}

func (s *ChatService) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()

	if s.generator == nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ai.ErrNotConfigured)
	}
	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, ai.ErrEmptyCompletion)
	}
	return answer, nil
}

func (s *ChatService) persist(ctx context.Context, userMsg, assistantMsg *model.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PersistTimeout)
	defer cancel()

	if err := s.messages.CreatePair(ctx, userMsg, assistantMsg); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistenceFailed, err)
	}
	if s.history != nil {
		if err := s.history.Invalidate(ctx, userMsg.ChatID); err != nil {
			s.log.Warn("invalidate history cache failed", zap.Uint("chat_id", userMsg.ChatID), zap.Error(err))
		}
	}
	return nil
}

// loadHistory reads through the cache unless a recent write marked it dirty.
func (s *ChatService) loadHistory(ctx context.Context, chatID uint) ([]model.Message, error) {
	if s.history != nil {
		if dirty, err := s.history.IsDirty(ctx, chatID); err == nil && !dirty {
			if cached, hit, err := s.history.GetHistory(ctx, chatID); err == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messages.ListByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		if err := s.history.SetHistory(ctx, chatID, messages); err != nil {
			s.log.Warn("populate history cache failed", zap.Uint("chat_id", chatID), zap.Error(err))
		}
	}
	return messages, nil
}

func (s *ChatService) transition(chatID uint, result *TurnResult, next TurnState) {
	s.log.Debug("turn state",
		zap.Uint("chat_id", chatID),
		zap.Stringer("from", result.State),
		zap.Stringer("to", next),
	)
	result.State = next
}

// latestQuestion returns the content of the last message, which must come
// from the user.
func latestQuestion(messages []TurnMessage) (string, error) {
	last := messages[len(messages)-1]
	role := strings.TrimSpace(last.Role)
	if role != "" && role != model.RoleUser {
		return "", fmt.Errorf("%w: last message must have role user", ErrInvalidInput)
	}
	content := strings.TrimSpace(last.Content)
	if content == "" {
		return "", fmt.Errorf("%w: message content is empty", ErrInvalidInput)
	}
	return content, nil
}

func authorizeChat(ctx context.Context, chats ChatStore, userID, chatID uint) (*model.Chat, error) {
	if userID == 0 || chatID == 0 {
		return nil, ErrInvalidInput
	}
	chat, err := chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	if chat.UserID != userID {
		return nil, ErrForbidden
	}
	return chat, nil
}
