package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saypex/auth-service/internal/user"
)

// currentUserKey is the gin context key holding the authenticated user.
const currentUserKey = "currentUser"

type Middleware struct {
	service    *Service
	repository user.Repository
	log        *zap.Logger
}

func NewMiddleware(service *Service, repo user.Repository, log *zap.Logger) *Middleware {
	return &Middleware{
		service:    service,
		repository: repo,
		log:        log,
	}
}

// RequireAuth validates the Bearer token and re-resolves the subject.
// A token is only as good as the account behind it: a suspended user
// with an unexpired token is still rejected.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		claims, err := m.service.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		u, err := m.repository.GetByID(c.Request.Context(), claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if u.Status != user.StatusActive {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "account is not active"})
			return
		}

		c.Set(currentUserKey, u)
		c.Next()
	}
}

// RequireRole gates a route on one of the given roles. Must run after
// RequireAuth.
func (m *Middleware) RequireRole(roles ...user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := CurrentUser(c)
		if u == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, role := range roles {
			if u.Role == role {
				c.Next()
				return
			}
		}
		m.log.Warn("insufficient role",
			zap.String("user_id", u.ID),
			zap.String("role", string(u.Role)),
			zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	}
}

// CurrentUser returns the authenticated user set by RequireAuth, or nil.
func CurrentUser(c *gin.Context) *user.User {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil
	}
	u, ok := value.(*user.User)
	if !ok {
		return nil
	}
	return u
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
