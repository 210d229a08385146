package oauth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/user"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) Providers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.service.Providers()})
}

func (h *Handler) Login(c *gin.Context) {
	provider := c.Param("provider")
	redirectURI := c.Query("redirect_uri")
	if redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "redirect_uri is required"})
		return
	}

	result, err := h.service.BeginLogin(c.Request.Context(), provider, redirectURI)
	if err != nil {
		if errors.Is(err, ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		h.log.Error("failed to begin oauth login", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start oauth login"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type callbackRequest struct {
	Code  string `json:"code" binding:"required"`
	State string `json:"state" binding:"required"`
}

type callbackResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	User        user.Response `json:"user"`
}

func (h *Handler) Callback(c *gin.Context) {
	provider := c.Param("provider")

	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state are required"})
		return
	}

	result, err := h.service.CompleteLogin(c.Request.Context(), provider, req.Code, req.State)
	if err != nil {
		h.writeCallbackError(c, provider, err)
		return
	}

	c.JSON(http.StatusOK, callbackResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(result.ExpiresAt).Seconds()),
		User:        user.NewResponse(result.User),
	})
}

func (h *Handler) writeCallbackError(c *gin.Context, provider string, err error) {
	switch {
	case errors.Is(err, ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
	case errors.Is(err, ErrStateMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired oauth state"})
	case errors.Is(err, ErrExchangeFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "oauth provider rejected the request"})
	case errors.Is(err, ErrEmailMissing):
		c.JSON(http.StatusBadRequest, gin.H{"error": "oauth provider did not supply an email address"})
	default:
		h.log.Error("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "oauth login failed"})
	}
}
