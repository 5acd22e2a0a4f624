package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"tarefasplus/domain"
)

var errStaleCacheFill = errors.New("cache generation changed during fill")

// Cache keeps the latest task list of each owner in Redis. Every eviction
// bumps a per-owner generation so that a list read before a write can never be
// stored after that write's eviction.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a task list cache using the provided Redis client and TTL.
// A nil client or zero TTL disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{redis: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

// load returns the cached list of owner. On a miss it returns the generation
// that must be handed to store once the list has been fetched.
func (c *Cache) load(ctx context.Context, owner string) ([]domain.Task, string, bool) {
	if !c.enabled() {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(owner)).Bytes()
	if err == nil {
		var tasks []domain.Task
		if err := sonic.Unmarshal(data, &tasks); err == nil {
			return tasks, "", true
		}
		_ = c.redis.Del(ctx, tasksCacheKey(owner)).Err()
	} else if err != redis.Nil {
		// On redis errors fall back to the backing storage without failing.
		_ = c.redis.Del(ctx, tasksCacheKey(owner)).Err()
	}
	gen, err := c.redis.Get(ctx, generationKey(owner)).Result()
	if err != nil && err != redis.Nil {
		return nil, "", false
	}
	return nil, gen, false
}

func (c *Cache) store(ctx context.Context, owner, gen string, tasks []domain.Task) error {
	if !c.enabled() {
		return nil
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return err
	}
	genKey := generationKey(owner)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleCacheFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, tasksCacheKey(owner), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleCacheFill) || errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (c *Cache) evict(ctx context.Context, owner string) error {
	if c == nil || c.redis == nil {
		return nil
	}
	_, err := c.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, generationKey(owner))
		p.Del(ctx, tasksCacheKey(owner))
		return nil
	})
	return err
}

func tasksCacheKey(owner string) string {
	return "tasks:" + owner
}

func generationKey(owner string) string {
	return "tasks-gen:" + owner
}
