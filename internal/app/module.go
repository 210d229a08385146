package app

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/account"
	"github.com/saypex/auth-service/internal/auth"
	"github.com/saypex/auth-service/internal/database"
	"github.com/saypex/auth-service/internal/migration"
	"github.com/saypex/auth-service/internal/oauth"
	"github.com/saypex/auth-service/internal/server"
	"github.com/saypex/auth-service/internal/tfa"
	"github.com/saypex/auth-service/internal/user"
)

// Module combines all application modules
func Module() fx.Option {
	return fx.Options(
		// Logger
		fx.Provide(newLogger),

		// Configuration
		fx.Provide(server.LoadConfig),

		// Storage; the schema is brought up to date before the server
		// starts taking requests.
		migration.Module(),
		database.Module(),

		// Domain modules
		user.NewModule(),
		auth.NewModule(),
		tfa.NewModule(),
		oauth.NewModule(),
		account.NewModule(),

		// Server
		fx.Provide(server.NewServer),

		// Start the server
		fx.Invoke(registerHooks),
	)
}

func newLogger() (*zap.Logger, error) {
	env := os.Getenv("APP_ENV")
	return server.NewLogger(env)
}

func registerHooks(
	lifecycle fx.Lifecycle,
	srv *server.Server,
	log *zap.Logger,
) {
	lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	})
}
