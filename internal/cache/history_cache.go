package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"pdfchat/internal/model"
)

// setHistoryScript stores the history only while the chat is not dirty. The
// check and the write run as one step so an invalidation cannot slip between
// them.
var setHistoryScript = redisv9.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// HistoryCache keeps replayable chat history in Redis. A short-lived dirty
// marker is set on every write so readers racing a commit go to the database
// instead of repopulating the cache with stale rows.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	historyTTL, dirtyMarkerTTL = normalizeTTL(historyTTL, dirtyMarkerTTL)
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

func (c *HistoryCache) GetHistory(ctx context.Context, chatID uint) ([]model.Message, bool, error) {
	raw, err := c.client.Get(ctx, historyKey(chatID)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var messages []model.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return messages, true, nil
}

// SetHistory caches messages unless the chat was invalidated within the
// dirty marker TTL; in that case it is a no-op.
func (c *HistoryCache) SetHistory(ctx context.Context, chatID uint, messages []model.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}
	keys := []string{historyKey(chatID), dirtyKey(chatID)}
	if err := setHistoryScript.Run(ctx, c.client, keys, payload, c.historyTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached history and marks the chat dirty.
func (c *HistoryCache) Invalidate(ctx context.Context, chatID uint) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.Del(ctx, historyKey(chatID))
		pipe.Set(ctx, dirtyKey(chatID), "1", c.dirtyMarkerTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, chatID uint) (bool, error) {
	exists, err := c.client.Exists(ctx, dirtyKey(chatID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func historyKey(chatID uint) string {
	return fmt.Sprintf("chat:history:%d", chatID)
}

func dirtyKey(chatID uint) string {
	return fmt.Sprintf("chat:history:dirty:%d", chatID)
}

func normalizeTTL(historyTTL, dirtyMarkerTTL time.Duration) (time.Duration, time.Duration) {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return historyTTL, dirtyMarkerTTL
}
