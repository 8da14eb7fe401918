package httpserver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
	middleware "github.com/Skotchmaster/restaurant_pos/pkg/middleware/auth"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type captureWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency stores the first response to each Idempotency-Key and replays it for
// retries, so a request queued offline and sent twice takes effect once. A stored
// response is only replayed to the same principal sending the same body.
type Idempotency struct {
	DB    *gorm.DB
	Locks *lock.Keyed
	Now   func() time.Time
}

func (m *Idempotency) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Idempotency) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		key := strings.TrimSpace(req.Header.Get(HeaderIdempotencyKey))
		if key == "" || req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions {
			return next(c)
		}
		ctx := req.Context()
		l := logging.FromContext(ctx).With("middleware", "idempotency")
		if len(key) > 64 {
			return badRequest(c, l, "idempotency_error", "idempotency key too long", nil)
		}

		unlock := m.Locks.Lock("idem:" + key)
		defer unlock()

		body, err := io.ReadAll(req.Body)
		if err != nil {
			return badRequest(c, l, "idempotency_error", "cannot read request body", err)
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		bodyHash := hex.EncodeToString(sum[:])
		principal := principalOf(c)

		var rec models.IdempotencyKey
		err = m.DB.WithContext(ctx).Where("key = ?", key).Take(&rec).Error
		switch {
		case err == nil:
			if rec.Method != req.Method || rec.Path != req.URL.Path || rec.Principal != principal || rec.BodyHash != bodyHash {
				l.Warn("idempotency_error", "status", http.StatusConflict, "reason", "key reused", "key", key)
				return c.JSON(http.StatusConflict, ErrorResponse{Status: "error", Kind: "conflict", Message: "idempotency key already used for another request"})
			}
			l.Info("idempotent_replay", "key", key, "status", rec.Status)
			c.Response().Header().Set("Idempotent-Replayed", "true")
			return c.Blob(rec.Status, echo.MIMEApplicationJSON, []byte(rec.Body))
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		cw := &captureWriter{ResponseWriter: c.Response().Writer}
		c.Response().Writer = cw
		if err := next(c); err != nil {
			c.Error(err)
		}
		c.Response().Writer = cw.ResponseWriter

		status := c.Response().Status
		// auth failures and server errors may succeed on retry, so they are not remembered
		if status >= http.StatusInternalServerError || status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil
		}
		rec = models.IdempotencyKey{
			Key:       key,
			Method:    req.Method,
			Path:      req.URL.Path,
			Principal: principal,
			BodyHash:  bodyHash,
			Status:    status,
			Body:      cw.buf.String(),
			CreatedAt: m.now(),
		}
		if err := m.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
			l.Warn("idempotency_store_failed", "key", key, "error", err)
		}
		return nil
	}
}

// principalOf names the caller as resolved by the role middleware. Staff tokens carry
// a subject; customers share the "customer" role and are told apart by the body hash.
func principalOf(c echo.Context) string {
	subject, _ := c.Get(middleware.CtxSubject).(string)
	return middleware.RoleFrom(c) + ":" + subject
}

// Prune forgets keys older than maxAge.
func (m *Idempotency) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	res := m.DB.WithContext(ctx).Where("created_at < ?", m.now().Add(-maxAge)).Delete(&models.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
