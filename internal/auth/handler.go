package auth

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
	return &Handler{
		service: service,
		log:     log,
	}
}

type registerRequest struct {
	Username    string  `json:"username" binding:"required"`
	Email       string  `json:"email" binding:"required"`
	Password    string  `json:"password" binding:"required"`
	FullName    *string `json:"full_name"`
	DateOfBirth *string `json:"date_of_birth"`
	Country     *string `json:"country"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tfaLoginRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	Code        string `json:"code" binding:"required"`
}

type tokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	User        user.Response `json:"user"`
}

type tfaRequiredResponse struct {
	TFARequired bool   `json:"tfa_required"`
	ChallengeID string `json:"challenge_id"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
		return
	}

	var dob *time.Time
	if req.DateOfBirth != nil {
		parsed, err := time.Parse("2006-01-02", *req.DateOfBirth)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "date_of_birth must be YYYY-MM-DD"})
			return
		}
		dob = &parsed
	}

	u, err := h.service.Register(c.Request.Context(), RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		DateOfBirth: dob,
		Country:     req.Country,
	})
	if err != nil {
		switch {
		case errors.Is(err, user.ErrDuplicateEmail):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "field": "email"})
		case errors.Is(err, user.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "field": "username"})
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.log.Error("failed to register user", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, user.NewResponse(u))
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.writeLoginError(c, err)
		return
	}

	if result.TFARequired {
		c.JSON(http.StatusOK, tfaRequiredResponse{TFARequired: true, ChallengeID: result.ChallengeID})
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result))
}

func (h *Handler) CompleteTFALogin(c *gin.Context) {
	var req tfaLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "challenge_id and code are required"})
		return
	}

	result, err := h.service.CompleteTFALogin(c.Request.Context(), req.ChallengeID, req.Code)
	if err != nil {
		h.writeLoginError(c, err)
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(result))
}

func (h *Handler) Me(c *gin.Context) {
	u := CurrentUser(c)
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, user.NewResponse(u))
}

func (h *Handler) writeLoginError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidCredentials.Error()})
	case errors.Is(err, ErrInvalidTFACode):
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrInvalidTFACode.Error()})
	case errors.Is(err, ErrChallengeInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"error": ErrChallengeInvalid.Error()})
	case errors.Is(err, ErrAccountLocked):
		c.JSON(http.StatusForbidden, gin.H{"error": ErrAccountLocked.Error()})
	case errors.Is(err, ErrAccountNotActive):
		c.JSON(http.StatusForbidden, gin.H{"error": ErrAccountNotActive.Error()})
	default:
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func newTokenResponse(result *LoginResult) tokenResponse {
	return tokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresIn:   int64(time.Until(result.ExpiresAt).Seconds()),
		User:        user.NewResponse(result.User),
	}
}
