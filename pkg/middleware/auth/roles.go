package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

const (
	CtxRole    = "role"
	CtxSubject = "subject"
)

// RoleMiddleware resolves the caller role from a bearer token or the accessToken cookie.
type RoleMiddleware struct {
	JWTSecret []byte
}

func NewRoleMiddleware(secret []byte) *RoleMiddleware {
	return &RoleMiddleware{JWTSecret: secret}
}

// Identify never rejects: callers without a valid token are treated as customers.
func (m *RoleMiddleware) Identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Set(CtxRole, tokens.RoleCustomer)
		if raw := tokenFrom(c); raw != "" {
			if claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret); err == nil {
				setUserContext(c, claims)
			}
		}
		return next(c)
	}
}

func (m *RoleMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFrom(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing access token")
			}
			claims, err := tokens.AccessClaimsFromToken(raw, m.JWTSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			if !slices.Contains(roles, claims.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			setUserContext(c, claims)
			return next(c)
		}
	}
}

func RoleFrom(c echo.Context) string {
	if r, ok := c.Get(CtxRole).(string); ok && r != "" {
		return r
	}
	return tokens.RoleCustomer
}

func tokenFrom(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if q := c.QueryParam("access_token"); q != "" {
		return q
	}
	if ck, err := c.Cookie("accessToken"); err == nil {
		return ck.Value
	}
	return ""
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set(CtxRole, claims.Role)
	c.Set(CtxSubject, claims.Subject)
}
