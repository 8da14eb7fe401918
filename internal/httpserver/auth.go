package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/pkg/hash"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

const (
	accessCookie = "accessToken"
	staffTTL     = 12 * time.Hour
)

// AuthHTTP issues staff tokens. PasswordHashes maps a staff role to its bcrypt hash;
// a role without a hash cannot log in.
type AuthHTTP struct {
	PasswordHashes map[string]string
	JWTSecret      []byte
	Now            func() time.Time
}

type loginRequest struct {
	Role     string `json:"role"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func createCookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHTTP) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "login_error", "invalid body", err)
	}
	if !tokens.IsStaff(req.Role) || !hash.CheckPassword(h.PasswordHashes[req.Role], req.Password) {
		l.Warn("login_failed", "status", http.StatusUnauthorized, "role", req.Role)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid role or password")
	}

	token, exp, err := tokens.IssueAccessToken(req.Role, req.Role, staffTTL, h.JWTSecret, h.now())
	if err != nil {
		l.Error("login_error", "status", http.StatusInternalServerError, "reason", "cannot sign token", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	c.SetCookie(createCookie(accessCookie, token, exp))

	l.Info("login_successful", "role", req.Role)
	return c.JSON(http.StatusOK, loginResponse{AccessToken: token, Role: req.Role, ExpiresAt: exp})
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "auth.logout")
	c.SetCookie(createCookie(accessCookie, "", time.Unix(0, 0)))
	l.Info("successful_logout")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}
