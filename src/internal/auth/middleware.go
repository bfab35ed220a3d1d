package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/casapps/landregistry/src/internal/database/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Context keys set by the middleware
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
	ContextIsAdmin  = "is_admin"
	ContextTokenID  = "token_id"
)

// SessionChecker reports whether the session behind a token is still live
type SessionChecker interface {
	SessionActive(ctx context.Context, tokenID string) (bool, error)
}

// Middleware provides authentication middleware
type Middleware struct {
	authService *AuthService
	sessions    SessionChecker
}

// NewMiddleware creates a new authentication middleware. sessions may be nil,
// in which case any valid token is accepted.
func NewMiddleware(authService *AuthService, sessions SessionChecker) *Middleware {
	return &Middleware{
		authService: authService,
		sessions:    sessions,
	}
}

// Auth returns the authentication middleware handler
func (m *Middleware) Auth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication")
			}

			// Validate Bearer token format
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authentication format")
			}

			claims, err := m.authService.ValidateToken(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			if m.sessions != nil {
				active, err := m.sessions.SessionActive(c.Request().Context(), claims.ID)
				if err != nil {
					return err
				}
				if !active {
					return echo.NewHTTPError(http.StatusUnauthorized, ErrSessionRevoked.Error())
				}
			}

			// Store user information in context
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUsername, claims.Username)
			c.Set(ContextRole, claims.Role)
			c.Set(ContextIsAdmin, claims.IsAdmin())
			c.Set(ContextTokenID, claims.ID)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that requires admin privileges
func (m *Middleware) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			isAdmin, ok := c.Get(ContextIsAdmin).(bool)
			if !ok || !isAdmin {
				return echo.NewHTTPError(http.StatusForbidden, "admin privileges required")
			}
			return next(c)
		}
	}
}

// UserID returns the authenticated user id
func UserID(c echo.Context) (uuid.UUID, error) {
	if id, ok := c.Get(ContextUserID).(uuid.UUID); ok && id != uuid.Nil {
		return id, nil
	}
	return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
}

// IsAdmin reports whether the authenticated user is an admin
func IsAdmin(c echo.Context) bool {
	role, _ := c.Get(ContextRole).(models.Role)
	return role == models.RoleAdmin
}

// TokenID returns the id of the presented token
func TokenID(c echo.Context) string {
	id, _ := c.Get(ContextTokenID).(string)
	return id
}
