package user

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/saypex/auth-service/internal/config"
)

// NewModule returns the user module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(db *gorm.DB, redisClient *redis.Client, cfg *config.AppConfig, log *zap.Logger) Repository {
					return NewCachedRepository(NewRepository(db), redisClient, cfg.Cache.UserTTL, log)
				},
			),
		),
	)
}
