package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/saypex/auth-service/internal/account"
	"github.com/saypex/auth-service/internal/auth"
	"github.com/saypex/auth-service/internal/config"
	"github.com/saypex/auth-service/internal/oauth"
	"github.com/saypex/auth-service/internal/tfa"
)

type Server struct {
	config     *config.AppConfig
	log        *zap.Logger
	httpServer *http.Server
}

type Params struct {
	fx.In

	Config         *config.AppConfig
	Logger         *zap.Logger
	AuthHandler    *auth.Handler
	AuthMiddleware *auth.Middleware
	AccountHandler *account.Handler
	TFAHandler     *tfa.Handler
	OAuthHandler   *oauth.Handler
}

func NewServer(p Params) *Server {
	if p.Config.Server.Mode != "" {
		gin.SetMode(p.Config.Server.Mode)
	}

	engine := gin.New()
	engine.Use(requestLogger(p.Logger), gin.Recovery())

	registerRoutes(engine, p)

	addr := fmt.Sprintf("%s:%s", p.Config.Server.Host, p.Config.Server.Port)
	return &Server{
		config: p.Config,
		log:    p.Logger,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func registerRoutes(engine *gin.Engine, p Params) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")

	users := api.Group("/users")
	{
		users.POST("/register", p.AuthHandler.Register)
		users.POST("/login", p.AuthHandler.Login)
		users.POST("/login/2fa", p.AuthHandler.CompleteTFALogin)
		users.GET("/search", p.AccountHandler.Search)
		users.GET("/:id", p.AccountHandler.GetUser)
	}

	oauthRoutes := api.Group("/oauth")
	{
		oauthRoutes.GET("/providers", p.OAuthHandler.Providers)
		oauthRoutes.GET("/:provider/login", p.OAuthHandler.Login)
		oauthRoutes.POST("/:provider/callback", p.OAuthHandler.Callback)
	}

	protected := api.Group("/users", p.AuthMiddleware.RequireAuth())
	{
		protected.GET("/me", p.AuthHandler.Me)
		protected.PUT("/me", p.AccountHandler.UpdateProfile)
		protected.POST("/me/password", p.AccountHandler.ChangePassword)
		protected.GET("/me/subscriptions", p.AccountHandler.Subscriptions)
		protected.POST("/create-channel", p.AccountHandler.CreateChannel)
		protected.POST("/subscribe/:id", p.AccountHandler.Subscribe)
		protected.DELETE("/subscribe/:id", p.AccountHandler.Unsubscribe)
	}

	twoFactor := api.Group("/2fa", p.AuthMiddleware.RequireAuth())
	{
		twoFactor.POST("/setup", p.TFAHandler.Setup)
		twoFactor.POST("/verify-setup", p.TFAHandler.VerifySetup)
		twoFactor.POST("/disable", p.TFAHandler.Disable)
		twoFactor.POST("/backup-codes/regenerate", p.TFAHandler.RegenerateBackupCodes)
		twoFactor.GET("/status", p.TFAHandler.Status)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		zap.String("address", s.httpServer.Addr),
		zap.Object("config", serverConfigToField(s.config)),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to serve: %w", err)
	}

	return nil
}

func serverConfigToField(cfg *config.AppConfig) zapcore.ObjectMarshaler {
	return zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
		enc.AddString("environment", os.Getenv("APP_ENV"))
		enc.AddString("mode", cfg.Server.Mode)
		enc.AddInt("oauth_providers", len(cfg.OAuth.Providers))
		return nil
	})
}

func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
