package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/store"
)

const userKey = "auth.user"

// BearerToken extracts the token from an Authorization header.
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// RequireToken rejects requests without a live bearer token and stores the user on the
// context.
func RequireToken(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := svc.Authenticate(BearerToken(c.Request().Header.Get(echo.HeaderAuthorization)))
			if err != nil {
				return c.JSON(crmerr.HTTPStatus(err), map[string]any{"ok": false, "error": err.Error()})
			}
			c.Set(userKey, u)
			return next(c)
		}
	}
}

// RequireRole allows only users with one of roles. It must run after RequireToken.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u := UserFrom(c)
			if u == nil {
				return c.JSON(http.StatusUnauthorized, map[string]any{"ok": false, "error": "not authenticated"})
			}
			for _, r := range roles {
				if u.Role == r {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]any{"ok": false, "error": "insufficient role"})
		}
	}
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(c echo.Context) *store.User {
	u, _ := c.Get(userKey).(*store.User)
	return u
}
