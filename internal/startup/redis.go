package startup

import (
	"context"
	"time"

	"github.com/campuschat/internal/logger"
	redisstorage "github.com/campuschat/internal/storage/redis"
)

// ConnectRedisWithRetry подключает кеш истории. Кеш необязателен: после maxWait ошибка
// возвращается, и сервис работает без Redis.
func ConnectRedisWithRetry(redisURL string, historyTTL, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := retry("redis", maxWait, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(ctx, redisURL, historyTTL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("redis history cache connected (ttl=%v)", historyTTL)
	return client, nil
}
