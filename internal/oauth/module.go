package oauth

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/auth"
	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

// NewModule returns the oauth module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(cfg *config.AppConfig, redisClient *redis.Client) *StateStore {
					return NewStateStore(redisClient, &cfg.OAuth)
				},
			),
			fx.Annotate(
				func(cfg *config.AppConfig) map[string]Provider {
					return buildProviders(&cfg.OAuth)
				},
			),
			fx.Annotate(
				func(svc *auth.Service) TokenIssuer { return svc },
			),
			fx.Annotate(
				func(providers map[string]Provider, log *zap.Logger, repo user.Repository, states *StateStore, issuer TokenIssuer) *Service {
					return NewService(providers, log, repo, states, issuer, nil)
				},
			),
			fx.Annotate(
				func(svc *Service, log *zap.Logger) *Handler {
					return NewHandler(svc, log)
				},
			),
		),
	)
}
