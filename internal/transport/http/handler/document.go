package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/transport/http/response"
)

// Room for multipart boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type DocumentHandler struct {
	documentService *app.DocumentService
}

func NewDocumentHandler(documentService *app.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload creates a chat from a PDF sent as the multipart field "file".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	maxBytes := h.documentService.MaxBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeServiceError(c, app.ErrDocumentTooLarge, "upload failed")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file field is required")
		return
	}
	if fileHeader.Size > maxBytes {
		writeServiceError(c, app.ErrDocumentTooLarge, "upload failed")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload failed")
		return
	}

	result, err := h.documentService.CreateChat(c.Request.Context(), app.CreateChatInput{
		UserID:   userID,
		FileName: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		writeServiceError(c, err, "create chat failed")
		return
	}

	response.JSON(c, http.StatusCreated, gin.H{
		"chat":            toChatDTO(*result.Chat),
		"firstPageChunks": len(result.FirstPage),
	})
}

func (h *DocumentHandler) Download(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	chat, data, err := h.documentService.OpenDocument(c.Request.Context(), userID, chatID)
	if err != nil {
		writeServiceError(c, err, "open document failed")
		return
	}

	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": chat.PDFName}))
	c.Data(http.StatusOK, "application/pdf", data)
}

// Reindex answers 202 when the job was queued and 200 when it ran inline.
func (h *DocumentHandler) Reindex(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	chatID, ok := parseChatID(c)
	if !ok {
		return
	}

	queued, err := h.documentService.Reindex(c.Request.Context(), userID, chatID)
	if err != nil {
		writeServiceError(c, err, "reindex failed")
		return
	}

	status := http.StatusOK
	if queued {
		status = http.StatusAccepted
	}
	response.JSON(c, status, gin.H{"chatId": chatID, "queued": queued})
}
