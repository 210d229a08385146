package tfa

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/auth"
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

type setupResponse struct {
	Secret         string   `json:"secret"`
	QRCodeURL      string   `json:"qr_code_url"`
	QRCodeImage    string   `json:"qr_code_image"`
	BackupCodes    []string `json:"backup_codes"`
	ManualEntryKey string   `json:"manual_entry_key"`
	Message        string   `json:"message"`
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

type disableRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Setup(c *gin.Context) {
	u := auth.CurrentUser(c)

	result, err := h.service.Setup(c.Request.Context(), u.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyEnabled) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to set up two-factor", zap.String("user_id", u.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, setupResponse{
		Secret:         result.Secret,
		QRCodeURL:      result.OTPAuthURL,
		QRCodeImage:    result.QRCodeImage,
		BackupCodes:    result.BackupCodes,
		ManualEntryKey: result.Secret,
		Message:        "Scan the QR code with your authenticator app, then verify with a code",
	})
}

func (h *Handler) VerifySetup(c *gin.Context) {
	u := auth.CurrentUser(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}

	if err := h.service.VerifySetup(c.Request.Context(), u.ID, req.Code); err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrSetupNotFound), errors.Is(err, ErrAlreadyEnabled):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("failed to verify two-factor setup", zap.String("user_id", u.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": true, "message": "Two-factor authentication enabled"})
}

func (h *Handler) Disable(c *gin.Context) {
	u := auth.CurrentUser(c)

	var req disableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	if err := h.service.Disable(c.Request.Context(), u.ID, req.Password); err != nil {
		switch {
		case errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotEnabled):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("failed to disable two-factor", zap.String("user_id", u.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": false, "message": "Two-factor authentication disabled"})
}

func (h *Handler) RegenerateBackupCodes(c *gin.Context) {
	u := auth.CurrentUser(c)

	codes, err := h.service.RegenerateBackupCodes(c.Request.Context(), u.ID)
	if err != nil {
		if errors.Is(err, ErrNotEnabled) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("failed to regenerate backup codes", zap.String("user_id", u.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

func (h *Handler) Status(c *gin.Context) {
	u := auth.CurrentUser(c)

	status, err := h.service.Status(c.Request.Context(), u.ID)
	if err != nil {
		h.log.Error("failed to read two-factor status", zap.String("user_id", u.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, status)
}
