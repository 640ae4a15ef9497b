package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/lab-api/internal/model"
	"github.com/jwalitptl/lab-api/pkg/auth"
	"github.com/jwalitptl/lab-api/pkg/httputil"
)

const ContextSession = "session"

type AuthMiddleware struct {
	validator auth.SessionValidator
}

func NewAuthMiddleware(validator auth.SessionValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Authenticate verifies the bearer token and stores the session in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		session, err := m.validator.ValidateToken(parts[1])
		if err != nil {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ContextSession, session)
		c.Next()
	}
}

// RequireRole rejects sessions whose role is not one of roles
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFrom(c)
		if session == nil {
			httputil.RespondWithMessage(c, http.StatusUnauthorized, "authentication required")
			return
		}
		if !session.HasRole(roles...) {
			httputil.RespondWithMessage(c, http.StatusForbidden, "insufficient role")
			return
		}
		c.Next()
	}
}

// SessionFrom returns the authenticated session, or nil.
func SessionFrom(c *gin.Context) *model.Session {
	v, ok := c.Get(ContextSession)
	if !ok {
		return nil
	}
	session, _ := v.(*model.Session)
	return session
}
