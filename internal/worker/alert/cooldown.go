package alert

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cooldown 原子地占用 key，已被占用返回 false
type Cooldown interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisCooldown struct {
	rdb redis.Cmdable
}

// NewRedisCooldown SET NX EX，多实例共享冷却
func NewRedisCooldown(rdb redis.Cmdable) Cooldown {
	return &redisCooldown{rdb: rdb}
}

func (c *redisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, 1, ttl).Result()
}

type localCooldown struct {
	c *cache.Cache
}

// NewLocalCooldown 进程内冷却，未配置 redis 时使用
func NewLocalCooldown() Cooldown {
	return &localCooldown{c: cache.New(time.Hour, 10*time.Minute)}
}

func (c *localCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	// Add 在 key 存在且未过期时返回错误
	if err := c.c.Add(key, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}
