// Package storage holds the contracts shared by the storage backends.
package storage

import (
	"context"
	"errors"

	"github.com/campuschat/internal/model"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a unique constraint rejected the write.
	ErrConflict = errors.New("conflict")
)

// HistoryCache caches the full history of a pair. Keys are unordered: (a, b) and (b, a)
// address the same entry. Implementations: redis.Client, memory.HistoryCache.
type HistoryCache interface {
	Get(ctx context.Context, a, b string) ([]model.Message, bool, error)
	// Set stores msgs unless the pair was invalidated within the dirty window.
	Set(ctx context.Context, a, b string, msgs []model.Message) error
	Invalidate(ctx context.Context, a, b string) error
	Close() error
}

// PairCacheKey orders a and b so both directions share one key.
func PairCacheKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
