package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
)

type ErrorResponse struct {
	Status  string `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrAlreadyPaid), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNetworkUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail logs a service error under event and writes the error body.
func fail(c echo.Context, l *slog.Logger, event string, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "reason", "internal error", "error", err)
		msg = "internal error"
	} else {
		l.Warn(event, "status", status, "reason", domain.Kind(err), "error", err)
	}
	return c.JSON(status, ErrorResponse{Status: "error", Kind: domain.Kind(err), Message: msg})
}

func badRequest(c echo.Context, l *slog.Logger, event, reason string, err error) error {
	l.Warn(event, "status", http.StatusBadRequest, "reason", reason, "error", err)
	return c.JSON(http.StatusBadRequest, ErrorResponse{Status: "error", Kind: "validation", Message: reason})
}

// ErrorHandler renders echo's own errors (404 routes, auth middleware) in the API error shape.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	kind := "internal"
	msg := "internal error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = http.StatusText(status)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = "unauthorized"
		case http.StatusNotFound:
			kind = "not_found"
		case http.StatusBadRequest:
			kind = "validation"
		case http.StatusMethodNotAllowed:
			kind = "not_found"
		}
	} else {
		status = statusFor(err)
		kind = domain.Kind(err)
		if status < http.StatusInternalServerError {
			msg = err.Error()
		}
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, ErrorResponse{Status: "error", Kind: kind, Message: msg})
}

func parseID(c echo.Context) (uint, error) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || n == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(n), nil
}

func queryInt(c echo.Context, name string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.QueryParam(name)))
	if err != nil || n < 0 {
		return def
	}
	return n
}
