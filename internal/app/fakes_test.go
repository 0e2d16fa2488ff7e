package app

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"unicode"

	"pdfchat/internal/model"
	"pdfchat/internal/rag"
)

type fakeChatStore struct {
	mu     sync.Mutex
	nextID uint
	chats  map[uint]*model.Chat
	err    error
}

func newFakeChatStore(chats ...model.Chat) *fakeChatStore {
	s := &fakeChatStore{chats: map[uint]*model.Chat{}}
	for i := range chats {
		c := chats[i]
		s.chats[c.ID] = &c
		if c.ID > s.nextID {
			s.nextID = c.ID
		}
	}
	return s
}

func (s *fakeChatStore) Create(_ context.Context, chat *model.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.nextID++
	chat.ID = s.nextID
	c := *chat
	s.chats[c.ID] = &c
	return nil
}

func (s *fakeChatStore) GetByID(_ context.Context, id uint) (*model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *fakeChatStore) ListByUserID(_ context.Context, userID uint) ([]model.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Chat
	for _, c := range s.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	nextID   uint
	messages []model.Message
	err      error
	lists    int

	// afterList runs once, after the next listing took its snapshot.
	afterList func()
}

func (s *fakeMessageStore) CreatePair(_ context.Context, user, assistant *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	assistant.CreatedAt = user.CreatedAt
	s.nextID++
	user.ID = s.nextID
	s.nextID++
	assistant.ID = s.nextID
	s.messages = append(s.messages, *user, *assistant)
	return nil
}

func (s *fakeMessageStore) ListByChatID(_ context.Context, chatID uint) ([]model.Message, error) {
	s.mu.Lock()
	s.lists++
	var out []model.Message
	for _, m := range s.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	hook := s.afterList
	s.afterList = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

type stubRetriever struct {
	mu      sync.Mutex
	context string
	err     error
	calls   int
	onCall  func()
}

func (r *stubRetriever) GetContext(context.Context, string, string) (string, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.onCall != nil {
		r.onCall()
	}
	return r.context, r.err
}

type stubGenerator struct {
	mu      sync.Mutex
	answer  func(prompt string) string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.err != nil {
		return "", g.err
	}
	if g.answer == nil {
		return "answer", nil
	}
	return g.answer(prompt), nil
}

func (g *stubGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type recordingStream struct {
	sent    []model.Message
	done    bool
	sendErr error
}

func (s *recordingStream) Send(msg model.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingStream) Done() error {
	s.done = true
	return nil
}

type fakeDocumentStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	err     error
	deleted []string
}

func (s *fakeDocumentStore) Store(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.docs == nil {
		s.docs = map[string][]byte{}
	}
	key := "uploads/" + name
	s.docs[key] = data
	return key, nil
}

func (s *fakeDocumentStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *fakeDocumentStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	delete(s.docs, key)
	return nil
}

type stubIngester struct {
	keys    []string
	err     error
	dropped []string
}

func (i *stubIngester) Ingest(_ context.Context, fileKey string) ([]rag.Chunk, error) {
	i.keys = append(i.keys, fileKey)
	if i.err != nil {
		return nil, i.err
	}
	return []rag.Chunk{{ID: "h", PageNumber: 1, Text: "first page"}}, nil
}

func (i *stubIngester) Delete(_ context.Context, fileKey string) error {
	i.dropped = append(i.dropped, fileKey)
	return nil
}

type recordingQueue struct {
	jobs []model.IngestJob
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job model.IngestJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

// wordEmbedder maps texts to bag-of-words vectors.
type wordEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *wordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	vec := make([]float32, 512)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%512]++
	}
	return vec, nil
}

func (e *wordEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// textExtractor treats a document as plain text, one page per form feed.
type textExtractor struct{}

func (textExtractor) Extract(data []byte) ([]rag.Page, error) {
	parts := strings.Split(strings.TrimPrefix(string(data), "%PDF-"), "\f")
	pages := make([]rag.Page, len(parts))
	for i, p := range parts {
		pages[i] = rag.Page{Number: i + 1, Text: p}
	}
	return pages, nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  []*model.User
}

func (s *fakeUserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = s.nextID
	u := *user
	s.users = append(s.users, &u)
	return nil
}

func (s *fakeUserStore) find(match func(*model.User) bool) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			out := *u
			return &out
		}
	}
	return nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uint) (*model.User, error) {
	return s.find(func(u *model.User) bool { return u.ID == id }), nil
}
