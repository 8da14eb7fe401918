package httpserver_test

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/httpserver"
	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/search"
	"github.com/Skotchmaster/restaurant_pos/internal/testutil"
	"github.com/Skotchmaster/restaurant_pos/pkg/hash"
	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

const (
	adminPassword     = "admin-pw"
	receptionPassword = "front-desk"
)

var (
	hashesOnce sync.Once
	hashes     map[string]string
)

type httpEnv struct {
	*testutil.Stack
	e      *echo.Echo
	secret []byte
}

func newHTTPEnv(t *testing.T) *httpEnv {
	t.Helper()
	s := testutil.NewStack(t)

	hashesOnce.Do(func() {
		a, _ := hash.HashPassword(adminPassword)
		r, _ := hash.HashPassword(receptionPassword)
		hashes = map[string]string{tokens.RoleAdmin: a, tokens.RoleReception: r}
	})

	env := &httpEnv{Stack: s, e: echo.New(), secret: []byte("test-jwt-secret")}
	env.e.HTTPErrorHandler = httpserver.ErrorHandler

	httpserver.Register(env.e, &httpserver.Deps{
		AuthHandler:     &httpserver.AuthHTTP{PasswordHashes: hashes, JWTSecret: env.secret},
		TableHandler:    &httpserver.TableHTTP{Svc: s.Tables},
		OrderHandler:    &httpserver.OrderHTTP{Svc: s.Orders, Index: &search.DBIndex{DB: s.DB}},
		PaymentHandler:  &httpserver.PaymentHTTP{Svc: s.Payments},
		DaybookHandler:  &httpserver.DaybookHTTP{Svc: s.Ledger},
		SettingsHandler: &httpserver.SettingsHTTP{Svc: s.Settings},
		StateHandler: &httpserver.StateHTTP{
			Tables:   s.Tables,
			Orders:   s.Orders,
			Settings: s.Settings,
			WS:       realtime.NewWSSink(nil),
			Now:      s.Clock.Now,
		},
		MenuHandler: &httpserver.MenuHTTP{Svc: s.Menu},
		Idempotency: &httpserver.Idempotency{DB: s.DB, Locks: lock.NewKeyed(), Now: s.Clock.Now},
		JWTSecret:   env.secret,
	})
	return env
}

func (env *httpEnv) token(t *testing.T, role string) string {
	t.Helper()
	tok, _, err := tokens.IssueAccessToken(role, role, time.Hour, env.secret, time.Now())
	require.NoError(t, err)
	return tok
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (env *httpEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(c.body))
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, rec.Body.String())
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
