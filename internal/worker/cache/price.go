package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	PRICE_CACHE_TTL      = 5 * time.Minute // 本地缓存过期时间
	PRICE_REDIS_TIMEOUT  = 500 * time.Millisecond
	priceCleanupInterval = time.Minute
)

// PriceCache USD 单价缓存：本地 go-cache + 可选 redis 共享层，
// 尽力而为，最多落后一个 TTL
type PriceCache struct {
	tl         *zap.Logger
	ttl        time.Duration
	localCache *cache.Cache
	redis      *redis.Client
}

// NewPriceCache rdb 可以为 nil
func NewPriceCache(tl *zap.Logger, rdb *redis.Client, ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = PRICE_CACHE_TTL
	}
	return &PriceCache{
		tl:         tl,
		ttl:        ttl,
		localCache: cache.New(ttl, priceCleanupInterval),
		redis:      rdb,
	}
}

// Get 先查本地缓存，再查 redis，redis 命中时回填本地
func (c *PriceCache) Get(ctx context.Context, key string) (float64, bool) {
	if cached, found := c.localCache.Get(key); found {
		if price, ok := cached.(float64); ok {
			return price, true
		}
	}
	if c.redis == nil {
		return 0, false
	}

	rctx, cancel := context.WithTimeout(ctx, PRICE_REDIS_TIMEOUT)
	defer cancel()
	val, err := c.redis.Get(rctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.tl.Debug("price cache redis get failed", zap.String("key", key), zap.Error(err))
		}
		return 0, false
	}
	price, err := strconv.ParseFloat(val, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	c.localCache.Set(key, price, cache.DefaultExpiration)
	return price, true
}

// Set 只缓存正价格
func (c *PriceCache) Set(ctx context.Context, key string, price float64) {
	if price <= 0 {
		return
	}
	c.localCache.Set(key, price, cache.DefaultExpiration)
	if c.redis == nil {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, PRICE_REDIS_TIMEOUT)
	defer cancel()
	if err := c.redis.Set(rctx, key, strconv.FormatFloat(price, 'g', -1, 64), c.ttl).Err(); err != nil {
		c.tl.Debug("price cache redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *PriceCache) Delete(ctx context.Context, key string) {
	c.localCache.Delete(key)
	if c.redis != nil {
		c.redis.Del(ctx, key)
	}
}
