package database

import (
	"github.com/redis/go-redis/v9"

	"github.com/saypex/auth-service/internal/config"
)

// NewRedis builds the shared redis client used for caching, login
// challenges, and oauth state.
func NewRedis(config *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
}
