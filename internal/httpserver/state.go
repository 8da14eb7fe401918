package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/internal/settings"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

// StateHTTP serves the reconnect snapshot and the live event stream.
type StateHTTP struct {
	Tables   *session.Manager
	Orders   *order.Engine
	Settings *settings.Store
	WS       *realtime.WSSink
	Now      func() time.Time
}

func (h *StateHTTP) Snapshot(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "state.snapshot")

	count, err := h.Settings.TableCount(ctx)
	if err != nil {
		return fail(c, l, "snapshot_error", err)
	}
	tables, err := h.Tables.ListTables(ctx)
	if err != nil {
		return fail(c, l, "snapshot_error", err)
	}
	orders, err := h.Orders.ListActive(ctx, order.Filter{})
	if err != nil {
		return fail(c, l, "snapshot_error", err)
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return c.JSON(http.StatusOK, models.Snapshot{
		Tables:        tables,
		ActiveOrders:  orders,
		TableCount:    count,
		GeneratedAt:   now.UTC(),
		Authoritative: true,
	})
}

func (h *StateHTTP) Stream(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "state.stream")
	if err := h.WS.Serve(c.Response(), c.Request()); err != nil {
		// the upgrader has already written the error response
		l.Warn("ws_upgrade_failed", "error", err)
	}
	return nil
}
