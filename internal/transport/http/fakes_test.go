package http

import (
	"context"
	"errors"
	"sort"
	"sync"

	"pdfchat/internal/model"
	"pdfchat/internal/rag"
)

type fakeChatStore struct {
	mu     sync.Mutex
	nextID uint
	chats  map[uint]*model.Chat
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
	defer s.mu.Unlock()
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
	return out, nil
}

func (s *fakeMessageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

type stubRetriever struct {
	context string
	err     error
}

func (r *stubRetriever) GetContext(context.Context, string, string) (string, error) {
	return r.context, r.err
}

type stubGenerator struct {
	answer string
	err    error
}

func (g *stubGenerator) Generate(context.Context, string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

type memoryDocumentStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (s *memoryDocumentStore) Store(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = map[string][]byte{}
	}
	key := "uploads/" + name
	s.docs[key] = data
	return key, nil
}

func (s *memoryDocumentStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (s *memoryDocumentStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

type stubIngester struct {
	err error
}

func (i *stubIngester) Ingest(context.Context, string) ([]rag.Chunk, error) {
	if i.err != nil {
		return nil, i.err
	}
	return []rag.Chunk{{ID: "a", PageNumber: 1, Text: "one"}, {ID: "b", PageNumber: 1, Text: "two"}}, nil
}

func (i *stubIngester) Delete(context.Context, string) error {
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []model.IngestJob
}

func (q *recordingQueue) Enqueue(_ context.Context, job model.IngestJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeUserStore struct {
	mu     sync.Mutex
	nextID uint
	users  []model.User
}

func (s *fakeUserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	user.ID = s.nextID
	s.users = append(s.users, *user)
	return nil
}

func (s *fakeUserStore) find(match func(model.User) bool) *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			out := u
			return &out
		}
	}
	return nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.Username == username }), nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.Email == email }), nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id uint) (*model.User, error) {
	return s.find(func(u model.User) bool { return u.ID == id }), nil
}
