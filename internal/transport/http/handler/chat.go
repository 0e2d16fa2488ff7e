package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/response"
)

const doneSentinel = "[DONE]"

type ChatHandler struct {
	chatService *app.ChatService
}

type TurnMessageRequest struct {
	Role    string `json:"role" binding:"max=16"`
	Content string `json:"content"`
}

type TurnRequest struct {
	ChatID   uint                 `json:"chatId" binding:"required"`
	Messages []TurnMessageRequest `json:"messages"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Turn answers the last message of the request over SSE. A request without
// messages replays the stored history as plain JSON instead.
func (h *ChatHandler) Turn(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	input := app.TurnInput{
		UserID:   userID,
		ChatID:   req.ChatID,
		Messages: make([]app.TurnMessage, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		input.Messages = append(input.Messages, app.TurnMessage{Role: m.Role, Content: m.Content})
	}

	stream := &sseAnswerStream{c: c}
	result, err := h.chatService.Turn(c.Request.Context(), input, stream)
	if err != nil {
		if stream.opened {
			// Headers are gone; the pair is already stored and the client
			// recovers it through a replay.
			_ = c.Error(err)
			return
		}
		writeServiceError(c, err, "chat turn failed")
		return
	}

	if result.Replay {
		c.JSON(http.StatusOK, gin.H{"messages": toMessageDTOs(result.History)})
	}
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	chats, err := h.chatService.ListChats(c.Request.Context(), userID)
	if err != nil {
		writeServiceError(c, err, "list chats failed")
		return
	}

	items := make([]chatDTO, 0, len(chats))
	for _, chat := range chats {
		items = append(items, toChatDTO(chat))
	}
	response.OK(c, items)
}

func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	messages, err := h.chatService.History(c.Request.Context(), userID, chatID)
	if err != nil {
		writeServiceError(c, err, "get history failed")
		return
	}
	response.OK(c, gin.H{"messages": toMessageDTOs(messages)})
}

// sseAnswerStream writes the answer as a "message" event followed by a
// "done" event. Headers are sent on the first event only, so errors raised
// before that still get a regular JSON response.
type sseAnswerStream struct {
	c      *gin.Context
	opened bool
}

func (s *sseAnswerStream) Send(msg model.Message) error {
	s.open()
	s.c.SSEvent("message", toMessageDTO(msg))
	return s.flush()
}

func (s *sseAnswerStream) Done() error {
	s.open()
	s.c.SSEvent("done", doneSentinel)
	return s.flush()
}

func (s *sseAnswerStream) open() {
	if s.opened {
		return
	}
	header := s.c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	s.c.Status(http.StatusOK)
	s.opened = true
}

func (s *sseAnswerStream) flush() error {
	s.c.Writer.Flush()
	if last := s.c.Errors.Last(); last != nil {
		return last.Err
	}
	return s.c.Request.Context().Err()
}
