package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	redisv9 "github.com/redis/go-redis/v9"
)

// Unlock releases a turn lock. It is safe to call more than once.
type Unlock = func(ctx context.Context) error

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder cannot release a lock taken by the next turn.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTurnLocker allows at most one in-flight turn per chat across all
// server replicas.
type RedisTurnLocker struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewRedisTurnLocker(client *redisv9.Client, ttl time.Duration) *RedisTurnLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &RedisTurnLocker{client: client, ttl: ttl}
}

func (l *RedisTurnLocker) TryLock(ctx context.Context, chatID uint) (Unlock, bool, error) {
	key := turnKey(chatID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis acquire turn lock failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	var once sync.Once
	unlock := func(ctx context.Context) error {
		var err error
		once.Do(func() {
			if e := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); e != nil && e != redisv9.Nil {
				err = fmt.Errorf("redis release turn lock failed: %w", e)
			}
		})
		return err
	}
	return unlock, true, nil
}

// MemoryTurnLocker is the single-process TurnLocker.
type MemoryTurnLocker struct {
	mu    sync.Mutex
	store *gocache.Cache
	ttl   time.Duration
}

func NewMemoryTurnLocker(ttl time.Duration) *MemoryTurnLocker {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &MemoryTurnLocker{
		store: gocache.New(ttl, time.Minute),
		ttl:   ttl,
	}
}

func (l *MemoryTurnLocker) TryLock(_ context.Context, chatID uint) (Unlock, bool, error) {
	key := turnKey(chatID)
	token := uuid.NewString()

	l.mu.Lock()
	defer l.mu.Unlock()
	// Add fails when an unexpired entry exists.
	if err := l.store.Add(key, token, l.ttl); err != nil {
		return nil, false, nil
	}

	unlock := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if v, ok := l.store.Get(key); ok && v.(string) == token {
			l.store.Delete(key)
		}
		return nil
	}
	return unlock, true, nil
}

func turnKey(chatID uint) string {
	return fmt.Sprintf("chat:turn:%d", chatID)
}
