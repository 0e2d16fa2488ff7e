package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/rag"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

// writeServiceError maps service and pipeline errors to the envelope.
// Unknown errors are reported with the fallback message only.
func writeServiceError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		response.Error(c, http.StatusForbidden, response.CodeForbidden, app.ErrForbidden.Error())
	case errors.Is(err, app.ErrChatNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChatNotFound, app.ErrChatNotFound.Error())
	case errors.Is(err, app.ErrTurnInProgress):
		response.Error(c, http.StatusConflict, response.CodeTurnInProgress, app.ErrTurnInProgress.Error())
	case errors.Is(err, app.ErrDocumentTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeDocumentTooLarge, app.ErrDocumentTooLarge.Error())
	case errors.Is(err, app.ErrUnsupportedDocument):
		response.Error(c, http.StatusUnsupportedMediaType, response.CodeUnsupportedMedia, app.ErrUnsupportedDocument.Error())
	case errors.Is(err, rag.ErrSourceUnavailable), errors.Is(err, rag.ErrExtractionFailed):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeDocumentUnreadable, "document could not be read")
	case errors.Is(err, rag.ErrEmbeddingUnavailable),
		errors.Is(err, rag.ErrEmbeddingEmpty),
		errors.Is(err, rag.ErrIndexUpsertFailed),
		errors.Is(err, rag.ErrIndexQueryFailed),
		errors.Is(err, app.ErrGenerationFailed):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, fallback)
	case errors.Is(err, app.ErrPersistenceFailed):
		response.Error(c, http.StatusInternalServerError, response.CodePersistenceFailed, fallback)
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	return middleware.CurrentUserID(c)
}

func parseChatID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chat id")
		return 0, false
	}
	return uint(id), true
}
