package osm

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mr1hm/go-hazard-mapper/internal/models"
	"github.com/mr1hm/go-hazard-mapper/internal/observability"
)

// CachedSource is a read-through cache keyed by Query.Key. An entry is
// written once, on the first successful fetch for its key, and is never
// replaced or evicted. Failed fetches are not cached.
type CachedSource struct {
	inner   Source
	metrics *observability.Metrics

	mu      sync.RWMutex
	entries map[string][]models.PointResource
	group   singleflight.Group
}

func NewCachedSource(inner Source, metrics *observability.Metrics) *CachedSource {
	return &CachedSource{
		inner:   inner,
		metrics: metrics,
		entries: make(map[string][]models.PointResource),
	}
}

// FetchResources returns a fresh slice header per call; resources and their
// attribute maps are shared and must be treated as read-only. Concurrent
// misses for one key share a single fetch.
func (c *CachedSource) FetchResources(ctx context.Context, q Query) ([]models.PointResource, error) {
	key := q.Key()

	if res, ok := c.lookup(key); ok {
		c.metrics.ResourceCache.WithLabelValues("hit").Inc()
		return res, nil
	}
	c.metrics.ResourceCache.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(key, func() (any, error) {
		if res, ok := c.lookup(key); ok {
			return res, nil
		}
		res, err := c.inner.FetchResources(ctx, q)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = res
		c.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]models.PointResource)), nil
}

// Len reports the number of cached queries.
func (c *CachedSource) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *CachedSource) lookup(key string) ([]models.PointResource, bool) {
	c.mu.RLock()
	res, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return clone(res), true
}

func clone(res []models.PointResource) []models.PointResource {
	out := make([]models.PointResource, len(res))
	copy(out, res)
	return out
}
