package awardperiod

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "award_period_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "award_period_cache_miss_total"})
)

// CachedClient memoises GetByID for a short TTL. ListActive always goes to the
// source and refreshes the cached entries it returns.
type CachedClient struct {
	source Client
	cache  *expirable.LRU[uint64, *AwardPeriod]
}

func NewCachedClient(source Client, size int, ttl time.Duration) *CachedClient {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedClient{
		source: source,
		cache:  expirable.NewLRU[uint64, *AwardPeriod](size, nil, ttl),
	}
}

func (c *CachedClient) ListActive(ctx context.Context) ([]*AwardPeriod, error) {
	periods, err := c.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range periods {
		c.cache.Add(p.ID, p)
	}
	return periods, nil
}

func (c *CachedClient) GetByID(ctx context.Context, id uint64) (*AwardPeriod, error) {
	if p, ok := c.cache.Get(id); ok {
		cacheHits.Inc()
		return p, nil
	}
	cacheMiss.Inc()

	p, err := c.source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Add(id, p)
	zap.L().Debug("[AwardPeriod] cached", zap.Uint64("award_period_id", id))
	return p, nil
}

func (c *CachedClient) Invalidate(id uint64) {
	c.cache.Remove(id)
}
