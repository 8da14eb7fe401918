package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

func TestRequireRole(t *testing.T) {
	secret := []byte("k")
	m := NewRoleMiddleware(secret)
	admin, _, err := tokens.IssueAccessToken("a", tokens.RoleAdmin, time.Hour, secret, time.Now())
	require.NoError(t, err)
	desk, _, err := tokens.IssueAccessToken("r", tokens.RoleReception, time.Hour, secret, time.Now())
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + desk, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := m.RequireRole(tokens.RoleAdmin)(func(c echo.Context) error {
				assert.Equal(t, tokens.RoleAdmin, RoleFrom(c))
				return c.NoContent(http.StatusOK)
			})
			err := h(c)
			if tt.want == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, rec.Code)
				return
			}
			var he *echo.HTTPError
			require.ErrorAs(t, err, &he)
			assert.Equal(t, tt.want, he.Code)
		})
	}
}

func TestIdentifyDefaultsToCustomer(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	m := NewRoleMiddleware([]byte("k"))
	err := m.Identify(func(c echo.Context) error {
		assert.Equal(t, tokens.RoleCustomer, RoleFrom(c))
		return nil
	})(c)
	require.NoError(t, err)
}
