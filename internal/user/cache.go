package user

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "user_by_id:"

// CachedRepository decorates a Repository with a Redis projection cache
// on GetByID. Every mutation of a user evicts its entry, so stale
// projections never outlive an update. Cache failures degrade to the
// underlying store, they are never surfaced to callers.
type CachedRepository struct {
	Repository

	redis *redis.Client
	ttl   time.Duration
	log   *zap.Logger
}

func NewCachedRepository(repo Repository, redisClient *redis.Client, ttl time.Duration, log *zap.Logger) *CachedRepository {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedRepository{
		Repository: repo,
		redis:      redisClient,
		ttl:        ttl,
		log:        log,
	}
}

func (c *CachedRepository) key(id string) string {
	return cacheKeyPrefix + id
}

func (c *CachedRepository) GetByID(ctx context.Context, id string) (*User, error) {
	if data, err := c.redis.Get(ctx, c.key(id)).Bytes(); err == nil {
		var u User
		if err := json.Unmarshal(data, &u); err == nil {
			return &u, nil
		}
		// Unreadable entry, drop it and fall through.
		c.redis.Del(ctx, c.key(id))
	}

	u, err := c.Repository.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(u); err == nil {
		if err := c.redis.Set(ctx, c.key(id), data, c.ttl).Err(); err != nil {
			c.log.Warn("failed to cache user", zap.String("user_id", id), zap.Error(err))
		}
	}
	return u, nil
}

// Evict removes a user's cached projection.
func (c *CachedRepository) Evict(ctx context.Context, id string) {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.Warn("failed to evict user from cache", zap.String("user_id", id), zap.Error(err))
	}
}

func (c *CachedRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	err := c.Repository.UpdateFields(ctx, id, fields)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) UpdateLoginAttempts(ctx context.Context, id string, failed bool) error {
	err := c.Repository.UpdateLoginAttempts(ctx, id, failed)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) LockAccount(ctx context.Context, id string, duration time.Duration) error {
	err := c.Repository.LockAccount(ctx, id, duration)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) UnlockAccount(ctx context.Context, id string) error {
	err := c.Repository.UnlockAccount(ctx, id)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) UpdateLastLogin(ctx context.Context, id string) error {
	err := c.Repository.UpdateLastLogin(ctx, id)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) StorePendingTFASecret(ctx context.Context, id, secret string) (bool, error) {
	ok, err := c.Repository.StorePendingTFASecret(ctx, id, secret)
	c.Evict(ctx, id)
	return ok, err
}

func (c *CachedRepository) EnableTFA(ctx context.Context, id string) (bool, error) {
	ok, err := c.Repository.EnableTFA(ctx, id)
	c.Evict(ctx, id)
	return ok, err
}

func (c *CachedRepository) DisableTFA(ctx context.Context, id string) error {
	err := c.Repository.DisableTFA(ctx, id)
	c.Evict(ctx, id)
	return err
}

func (c *CachedRepository) CreateChannel(ctx context.Context, id, channelID, name string, description *string) (bool, error) {
	ok, err := c.Repository.CreateChannel(ctx, id, channelID, name, description)
	c.Evict(ctx, id)
	return ok, err
}

func (c *CachedRepository) LinkProvider(ctx context.Context, id, provider, subjectID string) error {
	err := c.Repository.LinkProvider(ctx, id, provider, subjectID)
	c.Evict(ctx, id)
	return err
}
