package auth

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

// NewModule returns the auth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide challenge store
			fx.Annotate(
				func(cfg *config.AppConfig, redisClient *redis.Client) *ChallengeStore {
					return NewChallengeStore(redisClient, &cfg.TFA)
				},
			),
			// Provide service
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, repo user.Repository, challenges *ChallengeStore, tfa TFAVerifier) *Service {
					return NewService(&cfg.Auth, log, repo, challenges, tfa)
				},
			),
			// Provide handler
			fx.Annotate(
				func(svc *Service, log *zap.Logger) *Handler {
					return NewHandler(svc, log)
				},
			),
			// Provide middleware
			fx.Annotate(
				func(svc *Service, repo user.Repository, log *zap.Logger) *Middleware {
					return NewMiddleware(svc, repo, log)
				},
			),
		),
	)
}
