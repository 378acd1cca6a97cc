package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campuschat/internal/model"
	"github.com/campuschat/internal/storage"
)

const (
	DefaultHistoryTTL = 60 * time.Second
	// DirtyTTL is how long a write blocks readers from repopulating the cache.
	DirtyTTL = 5 * time.Second
)

// Client is the Redis-backed history cache.
type Client struct {
	cli        *redis.Client
	historyTTL time.Duration
	dirtyTTL   time.Duration
}

func New(ctx context.Context, url string, historyTTL time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if historyTTL <= 0 {
		historyTTL = DefaultHistoryTTL
	}
	return &Client{cli: cli, historyTTL: historyTTL, dirtyTTL: DirtyTTL}, nil
}

var _ storage.HistoryCache = (*Client)(nil)

func (c *Client) Close() error {
	return c.cli.Close()
}

func historyKey(a, b string) string {
	return "chat:history:" + storage.PairCacheKey(a, b)
}

func dirtyKey(a, b string) string {
	return "chat:history:dirty:" + storage.PairCacheKey(a, b)
}

func (c *Client) Get(ctx context.Context, a, b string) ([]model.Message, bool, error) {
	raw, err := c.cli.Get(ctx, historyKey(a, b)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history: %w", err)
	}
	var msgs []model.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false, fmt.Errorf("redis unmarshal history: %w", err)
	}
	return msgs, true, nil
}

// setUnlessDirty writes KEYS[1] only while the dirty marker KEYS[2] is absent. Check and
// write run as one script so an Invalidate cannot land between them.
var setUnlessDirty = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Set skips the write while the pair's dirty marker is alive.
func (c *Client) Set(ctx context.Context, a, b string, msgs []model.Message) error {
	payload, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("redis marshal history: %w", err)
	}
	keys := []string{historyKey(a, b), dirtyKey(a, b)}
	if err := setUnlessDirty.Run(ctx, c.cli, keys, payload, c.historyTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set history: %w", err)
	}
	return nil
}

func (c *Client) Invalidate(ctx context.Context, a, b string) error {
	pipe := c.cli.TxPipeline()
	pipe.Set(ctx, dirtyKey(a, b), "1", c.dirtyTTL)
	pipe.Del(ctx, historyKey(a, b))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate history: %w", err)
	}
	return nil
}

// FlushDB clears the current Redis database. Used by tests.
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
