package account

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

// NewModule returns the account module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, repo user.Repository) *Service {
					return NewService(&cfg.Auth, log, repo)
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
