package tfa

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/auth"
	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/user"
)

// NewModule returns the two-factor module options
func NewModule() fx.Option {
	return fx.Options(
		fx.Provide(
			// Provide service, also satisfying the login phase-2 verifier
			fx.Annotate(
				func(cfg *config.AppConfig, log *zap.Logger, repo user.Repository) *Service {
					return NewService(&cfg.TFA, log, repo)
				},
			),
			fx.Annotate(
				func(svc *Service) auth.TFAVerifier { return svc },
			),
			// Provide handler
			fx.Annotate(
				func(svc *Service, log *zap.Logger) *Handler {
					return NewHandler(svc, log)
				},
			),
		),
	)
}
