package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"pdfchat/internal/model"
)

// MemoryHistoryCache is the in-process HistoryCache used when Redis is not
// configured.
type MemoryHistoryCache struct {
	// mu orders SetHistory against Invalidate.
	mu             sync.Mutex
	store          *gocache.Cache
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewMemoryHistoryCache(historyTTL, dirtyMarkerTTL time.Duration) *MemoryHistoryCache {
	historyTTL, dirtyMarkerTTL = normalizeTTL(historyTTL, dirtyMarkerTTL)
	return &MemoryHistoryCache{
		store:          gocache.New(historyTTL, 2*historyTTL),
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *MemoryHistoryCache) GetHistory(_ context.Context, chatID uint) ([]model.Message, bool, error) {
	v, ok := c.store.Get(historyKey(chatID))
	if !ok {
		return nil, false, nil
	}
	cached := v.([]model.Message)
	out := make([]model.Message, len(cached))
	copy(out, cached)
	return out, true, nil
}

func (c *MemoryHistoryCache) SetHistory(_ context.Context, chatID uint, messages []model.Message) error {
	stored := make([]model.Message, len(messages))
	copy(stored, messages)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dirty := c.store.Get(dirtyKey(chatID)); dirty {
		return nil
	}
	c.store.Set(historyKey(chatID), stored, c.historyTTL)
	return nil
}

func (c *MemoryHistoryCache) Invalidate(_ context.Context, chatID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(historyKey(chatID))
	c.store.Set(dirtyKey(chatID), struct{}{}, c.dirtyMarkerTTL)
	return nil
}

func (c *MemoryHistoryCache) IsDirty(_ context.Context, chatID uint) (bool, error) {
	_, ok := c.store.Get(dirtyKey(chatID))
	return ok, nil
}
