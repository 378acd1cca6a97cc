package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
)

const (
	defaultHistoryTTL = 60 * time.Second
	dirtyTTL          = 5 * time.Second
)

type item struct {
	msgs []model.Message
	exp  time.Time
}

// HistoryCache is the in-process counterpart of the Redis history cache, used with
// -memory when no Redis is configured.
type HistoryCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]item
	dirty map[string]time.Time
}

func NewHistoryCache(ttl time.Duration) *HistoryCache {
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}
	return &HistoryCache{
		ttl:   ttl,
		items: make(map[string]item),
		dirty: make(map[string]time.Time),
	}
}

var _ storage.HistoryCache = (*HistoryCache)(nil)

func (c *HistoryCache) Close() error { return nil }

func (c *HistoryCache) Get(ctx context.Context, a, b string) ([]model.Message, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[storage.PairCacheKey(a, b)]
	if !ok || time.Now().After(v.exp) {
		return nil, false, nil
	}
	out := make([]model.Message, len(v.msgs))
	copy(out, v.msgs)
	return out, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, a, b string, msgs []model.Message) error {
	key := storage.PairCacheKey(a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	if until, ok := c.dirty[key]; ok {
		if time.Now().Before(until) {
			return nil
		}
		delete(c.dirty, key)
	}
	cp := make([]model.Message, len(msgs))
	copy(cp, msgs)
	c.items[key] = item{msgs: cp, exp: time.Now().Add(c.ttl)}
	return nil
}

func (c *HistoryCache) Invalidate(ctx context.Context, a, b string) error {
	key := storage.PairCacheKey(a, b)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	c.dirty[key] = time.Now().Add(dirtyTTL)
	return nil
}
