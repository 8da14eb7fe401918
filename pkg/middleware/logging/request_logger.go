package loggingmw

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	ctxRole              = "role"
)

// RequestLogger puts a request-scoped logger into the context and writes one summary
// line per request. Errors are rendered here so the logged status matches the response.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			l := base.With(
				"method", req.Method,
				"url", req.URL.Path,
				"remote_ip", c.RealIP(),
			)
			if rid := requestID(c); rid != "" {
				l = l.With("request_id", rid)
			}
			if key := req.Header.Get(headerIdempotencyKey); key != "" {
				l = l.With("idempotency_key", key)
			}
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Echo().HTTPErrorHandler(err, c)
			}

			attrs := []any{
				"route", c.Path(),
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if role, ok := c.Get(ctxRole).(string); ok {
				attrs = append(attrs, "role", role)
			}
			if c.Response().Header().Get(headerReplayed) != "" {
				attrs = append(attrs, "replayed", true)
			}

			status := c.Response().Status
			switch {
			case err != nil && status >= 500:
				l.Error("request_failed", append(attrs, "error", err.Error())...)
			case status >= 500:
				l.Error("request_failed", attrs...)
			case status >= 400:
				l.Warn("request_rejected", attrs...)
			default:
				l.Info("request_completed", append(attrs, "bytes", c.Response().Size)...)
			}
			return nil
		}
	}
}

// requestID prefers the id echo's RequestID middleware generated for the response.
func requestID(c echo.Context) string {
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		return rid
	}
	rid := c.Request().Header.Get(echo.HeaderXRequestID)
	if rid != "" {
		c.Response().Header().Set(echo.HeaderXRequestID, rid)
	}
	return rid
}
