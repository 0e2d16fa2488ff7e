package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsvc "pdfchat/internal/app"
	"pdfchat/internal/cache"
	"pdfchat/internal/config"
	"pdfchat/internal/model"
	"pdfchat/internal/pkg/jwtutil"
	"pdfchat/internal/rag"
	"pdfchat/internal/transport/http/handler"
	"pdfchat/internal/transport/http/middleware"
	"pdfchat/internal/transport/http/response"
)

const (
	testSecret        = "router-test-secret"
	ownerID      uint = 1
	strangerID   uint = 2
	seededChatID uint = 10
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testEnv struct {
	router    *gin.Engine
	chats     *fakeChatStore
	messages  *fakeMessageStore
	generator *stubGenerator
	queue     *recordingQueue
}

func newTestEnv(t *testing.T, withQueue bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		chats: newFakeChatStore(model.Chat{
			ID:        seededChatID,
			UserID:    ownerID,
			FileKey:   "uploads/france.pdf",
			PDFName:   "france.pdf",
			CreatedAt: time.Now().Add(-time.Hour),
		}),
		messages:  &fakeMessageStore{},
		generator: &stubGenerator{answer: "Paris."},
		queue:     &recordingQueue{},
	}
	docs := &memoryDocumentStore{docs: map[string][]byte{"uploads/france.pdf": []byte("%PDF-1.4 france")}}

	prompt, err := rag.NewPromptTemplate(config.DefaultPromptTemplate)
	require.NoError(t, err)

	chatService := appsvc.NewChatService(
		env.chats,
		env.messages,
		cache.NewMemoryHistoryCache(time.Minute, 10*time.Millisecond),
		cache.NewMemoryTurnLocker(time.Minute),
		&stubRetriever{context: "The capital of France is Paris."},
		prompt,
		env.generator,
		appsvc.ChatServiceConfig{},
		nil,
	)

	var queue appsvc.IngestQueue
	if withQueue {
		queue = env.queue
	}
	documentService := appsvc.NewDocumentService(env.chats, docs, &stubIngester{}, queue, 1<<10, nil)
	authService := appsvc.NewAuthService(&fakeUserStore{}, testSecret, time.Hour)

	env.router = newRouter(RouterConfig{JWTSecret: testSecret}, Services{
		Auth:     authService,
		Chat:     chatService,
		Document: documentService,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, contentType string, userID uint) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != 0 {
		token, err := jwtutil.GenerateToken(testSecret, time.Hour, userID, "user")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path string, payload interface{}, userID uint) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return e.do(t, nethttp.MethodPost, path, body, "application/json", userID)
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func multipartFile(t *testing.T, field, name string, data []byte) ([]byte, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body.Bytes(), writer.FormDataContentType()
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.postJSON(t, "/api/v1/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, 0)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())

	w = env.postJSON(t, "/api/v1/auth/register", gin.H{
		"username": "alice",
		"email":    "other@example.com",
		"password": "password123",
	}, 0)
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeUsernameExists, decodeEnvelope(t, w, nil).Code)

	w = env.postJSON(t, "/api/v1/auth/login", gin.H{"username": "alice", "password": "wrong-password"}, 0)
	assert.Equal(t, nethttp.StatusUnauthorized, w.Code)

	w = env.postJSON(t, "/api/v1/auth/login", gin.H{"username": "alice", "password": "password123"}, 0)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	decodeEnvelope(t, w, &login)
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, nethttp.MethodGet, "/api/v1/chats", nil, "", 0)
	assert.Equal(t, nethttp.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderRequestID))

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/chats", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/chats", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(middleware.HeaderRequestID))
}

func TestUploadListAndDownload(t *testing.T) {
	env := newTestEnv(t, false)
	pdf := []byte("%PDF-1.7 a tiny document")

	body, contentType := multipartFile(t, "file", "report.pdf", pdf)
	w := env.do(t, nethttp.MethodPost, "/api/v1/chats", body, contentType, ownerID)
	require.Equal(t, nethttp.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Chat struct {
			ID      uint   `json:"id"`
			PDFName string `json:"pdfName"`
			FileKey string `json:"fileKey"`
		} `json:"chat"`
		FirstPageChunks int `json:"firstPageChunks"`
	}
	decodeEnvelope(t, w, &created)
	assert.Equal(t, "report.pdf", created.Chat.PDFName)
	assert.Equal(t, 2, created.FirstPageChunks)
	require.NotZero(t, created.Chat.ID)

	w = env.do(t, nethttp.MethodGet, "/api/v1/chats", nil, "", ownerID)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var chats []struct {
		ID uint `json:"id"`
	}
	decodeEnvelope(t, w, &chats)
	require.Len(t, chats, 2)
	assert.Equal(t, created.Chat.ID, chats[0].ID)

	w = env.do(t, nethttp.MethodGet, "/api/v1/chats/"+itoa(created.Chat.ID)+"/document", nil, "", ownerID)
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.pdf")
	assert.Equal(t, pdf, w.Body.Bytes())

	w = env.do(t, nethttp.MethodGet, "/api/v1/chats/"+itoa(created.Chat.ID)+"/document", nil, "", strangerID)
	assert.Equal(t, nethttp.StatusForbidden, w.Code)
}

func TestUploadRejects(t *testing.T) {
	env := newTestEnv(t, false)

	body, contentType := multipartFile(t, "file", "notes.txt", []byte("plain text"))
	w := env.do(t, nethttp.MethodPost, "/api/v1/chats", body, contentType, ownerID)
	assert.Equal(t, nethttp.StatusUnsupportedMediaType, w.Code)

	body, contentType = multipartFile(t, "file", "big.pdf", append([]byte("%PDF-"), bytes.Repeat([]byte("x"), 2<<10)...))
	w = env.do(t, nethttp.MethodPost, "/api/v1/chats", body, contentType, ownerID)
	assert.Equal(t, nethttp.StatusRequestEntityTooLarge, w.Code)

	body, contentType = multipartFile(t, "document", "report.pdf", []byte("%PDF-1.7"))
	w = env.do(t, nethttp.MethodPost, "/api/v1/chats", body, contentType, ownerID)
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
}

func TestTurnStreamsAnswerThenReplays(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.postJSON(t, "/api/v1/chat", gin.H{
		"chatId": seededChatID,
		"messages": []gin.H{
			{"role": "user", "content": "hello"},
			{"role": "assistant", "content": "hi"},
			{"role": "user", "content": "What is the capital of France?"},
		},
	}, ownerID)
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream"))

	stream := w.Body.String()
	messageAt := strings.Index(stream, "event:message")
	doneAt := strings.Index(stream, "event:done")
	require.GreaterOrEqual(t, messageAt, 0, stream)
	require.Greater(t, doneAt, messageAt, stream)
	assert.Contains(t, stream, `"content":"Paris."`)
	assert.Contains(t, stream, `"role":"assistant"`)
	assert.Contains(t, stream, "data:[DONE]")

	w = env.postJSON(t, "/api/v1/chat", gin.H{"chatId": seededChatID, "messages": []gin.H{}}, ownerID)
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))

	var replay struct {
		Messages []struct {
			ID        string    `json:"id"`
			Role      string    `json:"role"`
			Content   string    `json:"content"`
			CreatedAt time.Time `json:"createdAt"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replay))
	require.Len(t, replay.Messages, 2)
	assert.Equal(t, model.RoleUser, replay.Messages[0].Role)
	assert.Equal(t, "What is the capital of France?", replay.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, replay.Messages[1].Role)
	assert.Equal(t, "Paris.", replay.Messages[1].Content)
	assert.NotEmpty(t, replay.Messages[0].ID)
	assert.True(t, replay.Messages[1].CreatedAt.Equal(replay.Messages[0].CreatedAt), "a pair shares one timestamp")

	w = env.do(t, nethttp.MethodGet, "/api/v1/chats/10/messages", nil, "", ownerID)
	require.Equal(t, nethttp.StatusOK, w.Code)
	var history struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	decodeEnvelope(t, w, &history)
	assert.Len(t, history.Messages, 2)
}

func TestTurnErrors(t *testing.T) {
	tests := []struct {
		name   string
		userID uint
		body   gin.H
		status int
		code   int
	}{
		{
			name:   "missing chat id",
			userID: ownerID,
			body:   gin.H{"messages": []gin.H{{"role": "user", "content": "hi"}}},
			status: nethttp.StatusBadRequest,
			code:   response.CodeBadRequest,
		},
		{
			name:   "unknown chat",
			userID: ownerID,
			body:   gin.H{"chatId": 999, "messages": []gin.H{{"role": "user", "content": "hi"}}},
			status: nethttp.StatusNotFound,
			code:   response.CodeChatNotFound,
		},
		{
			name:   "foreign chat",
			userID: strangerID,
			body:   gin.H{"chatId": seededChatID, "messages": []gin.H{{"role": "user", "content": "hi"}}},
			status: nethttp.StatusForbidden,
			code:   response.CodeForbidden,
		},
		{
			name:   "foreign chat replay",
			userID: strangerID,
			body:   gin.H{"chatId": seededChatID, "messages": []gin.H{}},
			status: nethttp.StatusForbidden,
			code:   response.CodeForbidden,
		},
		{
			name:   "blank question",
			userID: ownerID,
			body:   gin.H{"chatId": seededChatID, "messages": []gin.H{{"role": "user", "content": "   "}}},
			status: nethttp.StatusBadRequest,
			code:   response.CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			w := env.postJSON(t, "/api/v1/chat", tt.body, tt.userID)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decodeEnvelope(t, w, nil).Code)
			assert.Zero(t, env.messages.count())
		})
	}
}

func TestTurnGenerationFailureReturnsJSON(t *testing.T) {
	env := newTestEnv(t, false)
	env.generator.err = errors.New("provider unavailable")

	w := env.postJSON(t, "/api/v1/chat", gin.H{
		"chatId":   seededChatID,
		"messages": []gin.H{{"role": "user", "content": "What is the capital of France?"}},
	}, ownerID)
	assert.Equal(t, nethttp.StatusBadGateway, w.Code)
	assert.Equal(t, response.CodeUpstreamFailed, decodeEnvelope(t, w, nil).Code)
	assert.NotContains(t, w.Body.String(), "event:")
	assert.Zero(t, env.messages.count())
}

func TestTurnPersistenceFailureNeverStreams(t *testing.T) {
	env := newTestEnv(t, false)
	env.messages.err = errors.New("deadlock")

	w := env.postJSON(t, "/api/v1/chat", gin.H{
		"chatId":   seededChatID,
		"messages": []gin.H{{"role": "user", "content": "What is the capital of France?"}},
	}, ownerID)
	assert.Equal(t, nethttp.StatusInternalServerError, w.Code)
	assert.Equal(t, response.CodePersistenceFailed, decodeEnvelope(t, w, nil).Code)
	assert.NotContains(t, w.Body.String(), "Paris.")
}

func TestReindex(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		env := newTestEnv(t, true)
		w := env.do(t, nethttp.MethodPost, "/api/v1/chats/10/reindex", nil, "", ownerID)
		assert.Equal(t, nethttp.StatusAccepted, w.Code)
		require.Len(t, env.queue.jobs, 1)
		assert.Equal(t, seededChatID, env.queue.jobs[0].ChatID)
		assert.Equal(t, "uploads/france.pdf", env.queue.jobs[0].FileKey)
	})

	t.Run("inline", func(t *testing.T) {
		env := newTestEnv(t, false)
		w := env.do(t, nethttp.MethodPost, "/api/v1/chats/10/reindex", nil, "", ownerID)
		assert.Equal(t, nethttp.StatusOK, w.Code)
		var out struct {
			Queued bool `json:"queued"`
		}
		decodeEnvelope(t, w, &out)
		assert.False(t, out.Queued)
	})

	t.Run("invalid id", func(t *testing.T) {
		env := newTestEnv(t, true)
		w := env.do(t, nethttp.MethodPost, "/api/v1/chats/abc/reindex", nil, "", ownerID)
		assert.Equal(t, nethttp.StatusBadRequest, w.Code)
		assert.Empty(t, env.queue.jobs)
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	health := handler.NewHealthHandler(
		handler.HealthInfo{App: "pdfchat", Env: "test", StartedAt: time.Now()},
		handler.DependencyCheck{Name: "database", Check: func(context.Context) error { return nil }},
		handler.DependencyCheck{Name: "redis"},
		handler.DependencyCheck{Name: "rabbitmq", Check: func(context.Context) error { return errors.New("connection closed") }},
	)
	router := newRouter(RouterConfig{JWTSecret: testSecret, Health: health}, Services{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	assert.Equal(t, nethttp.StatusServiceUnavailable, w.Code)

	var out struct {
		App          string `json:"app"`
		Dependencies map[string]struct {
			OK       bool   `json:"ok"`
			Disabled bool   `json:"disabled"`
			Message  string `json:"message"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "pdfchat", out.App)
	assert.True(t, out.Dependencies["database"].OK)
	assert.True(t, out.Dependencies["redis"].Disabled)
	assert.False(t, out.Dependencies["rabbitmq"].OK)
	assert.Equal(t, "connection closed", out.Dependencies["rabbitmq"].Message)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
