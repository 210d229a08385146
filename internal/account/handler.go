package account

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/auth"
	"github.com/saypex/auth-service/internal/user"
)

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(service *Service, log *zap.Logger) *Handler {
	return &Handler{service: service, log: log}
}

type updateProfileRequest struct {
	Username    *string           `json:"username"`
	FullName    *string           `json:"full_name"`
	Bio         *string           `json:"bio"`
	AvatarURL   *string           `json:"avatar_url"`
	Country     *string           `json:"country"`
	Timezone    *string           `json:"timezone"`
	DateOfBirth *string           `json:"date_of_birth"`
	Preferences *user.Preferences `json:"preferences"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	current := auth.CurrentUser(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	input := UpdateProfileInput{
		Username:    req.Username,
		FullName:    req.FullName,
		Bio:         req.Bio,
		AvatarURL:   req.AvatarURL,
		Country:     req.Country,
		Timezone:    req.Timezone,
		Preferences: req.Preferences,
	}
	if req.DateOfBirth != nil {
		dob, err := time.Parse("2006-01-02", *req.DateOfBirth)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "date_of_birth must be YYYY-MM-DD"})
			return
		}
		input.DateOfBirth = &dob
	}

	updated, err := h.service.UpdateProfile(c.Request.Context(), current, input)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrInvalidBirthDate):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, user.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, gin.H{"error": "username is already taken", "field": "username"})
		default:
			h.log.Error("failed to update profile", zap.String("user_id", current.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		}
		return
	}

	c.JSON(http.StatusOK, user.NewResponse(updated))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

func (h *Handler) ChangePassword(c *gin.Context) {
	current := auth.CurrentUser(c)

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current_password and new_password are required"})
		return
	}

	err := h.service.ChangePassword(c.Request.Context(), current, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		case errors.Is(err, ErrWeakPassword), errors.Is(err, ErrSamePassword):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.log.Error("failed to change password", zap.String("user_id", current.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

type createChannelRequest struct {
	Name        string  `json:"name" binding:"required,min=1,max=100"`
	Description *string `json:"description"`
}

func (h *Handler) CreateChannel(c *gin.Context) {
	current := auth.CurrentUser(c)

	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "channel name is required"})
		return
	}

	updated, err := h.service.CreateChannel(c.Request.Context(), current, CreateChannelInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		if errors.Is(err, user.ErrChannelExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "user already has a channel"})
			return
		}
		h.log.Error("failed to create channel", zap.String("user_id", current.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create channel"})
		return
	}

	c.JSON(http.StatusCreated, user.NewResponse(updated))
}

func (h *Handler) Subscribe(c *gin.Context) {
	current := auth.CurrentUser(c)
	channelUserID := c.Param("id")

	err := h.service.Subscribe(c.Request.Context(), current, channelUserID)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrSelfSubscription):
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot subscribe to your own channel"})
		case errors.Is(err, user.ErrNotFound), errors.Is(err, ErrNoChannel):
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		case errors.Is(err, user.ErrAlreadySubscribed):
			c.JSON(http.StatusConflict, gin.H{"error": "already subscribed"})
		default:
			h.log.Error("failed to subscribe", zap.String("user_id", current.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to subscribe"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "subscribed"})
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	current := auth.CurrentUser(c)
	channelUserID := c.Param("id")

	err := h.service.Unsubscribe(c.Request.Context(), current, channelUserID)
	if err != nil {
		if errors.Is(err, user.ErrNotSubscribed) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not subscribed"})
			return
		}
		h.log.Error("failed to unsubscribe", zap.String("user_id", current.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unsubscribe"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "unsubscribed"})
}

func (h *Handler) Subscriptions(c *gin.Context) {
	current := auth.CurrentUser(c)

	users, err := h.service.GetSubscriptions(c.Request.Context(), current)
	if err != nil {
		h.log.Error("failed to list subscriptions", zap.String("user_id", current.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	results := make([]user.PublicResponse, 0, len(users))
	for i := range users {
		results = append(results, user.NewPublicResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": results})
}

func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.service.GetPublicUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.log.Error("failed to fetch user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, user.NewPublicResponse(u))
}

func (h *Handler) Search(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	users, err := h.service.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.log.Error("search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}

	results := make([]user.PublicResponse, 0, len(users))
	for i := range users {
		results = append(results, user.NewPublicResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
