package secrets

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTTL is how long a fetched secret is reused.
const DefaultCacheTTL = 5 * time.Minute

// fetchTimeout bounds a shared upstream fetch. The fetch is detached from
// any single caller's cancellation because other callers may be waiting on it.
const fetchTimeout = 10 * time.Second

// Cached wraps a Provider with a TTL cache. Concurrent misses for the
// same secret share one upstream fetch. Failures are not cached.
type Cached struct {
	next  Provider
	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

// NewCached creates a caching provider. Call Close to stop the expiry loop.
func NewCached(next Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cache := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go cache.Start()
	return &Cached{next: next, cache: cache}
}

// GetSecret implements Provider.
func (c *Cached) GetSecret(ctx context.Context, id string) (string, error) {
	if item := c.cache.Get(id); item != nil {
		return item.Value(), nil
	}

	flight := c.group.DoChan(id, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		secret, err := c.next.GetSecret(fetchCtx, id)
		if err != nil {
			return "", err
		}
		c.cache.Set(id, secret, ttlcache.DefaultTTL)
		return secret, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops a cached secret so the next call refetches it.
func (c *Cached) Invalidate(id string) {
	c.cache.Delete(id)
}

// Close stops the cache's expiry loop.
func (c *Cached) Close() {
	c.cache.Stop()
}
