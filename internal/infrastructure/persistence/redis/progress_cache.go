package redis

import (
	"context"
	"errors"
	"time"

	"github.com/learnquest/progress-engine/internal/application/query"
	"github.com/learnquest/progress-engine/internal/domain/shared"
)

// ProgressCache implements query.ProgressCache on top of the generic Cache.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a new ProgressCache with the default TTL.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{
		cache: cache,
		ttl:   TTLProgressView,
	}
}

// GetProgress returns the cached view, or shared.ErrNotFound on a miss.
func (c *ProgressCache) GetProgress(ctx context.Context, userID string) (*query.ProgressView, error) {
	var view query.ProgressView
	err := c.cache.Get(ctx, ProgressKey(userID), &view)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &view, nil
}

// SetProgress stores the view under the user's key.
func (c *ProgressCache) SetProgress(ctx context.Context, view *query.ProgressView) error {
	if view == nil {
		return nil
	}
	return c.cache.Set(ctx, ProgressKey(view.UserID), view, c.ttl)
}

// InvalidateProgress drops the cached view.
func (c *ProgressCache) InvalidateProgress(ctx context.Context, userID string) error {
	return c.cache.Delete(ctx, ProgressKey(userID))
}
