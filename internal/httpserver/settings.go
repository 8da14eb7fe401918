package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/settings"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type SettingsHTTP struct {
	Svc *settings.Store
}

type tableCountBody struct {
	TableCount int `json:"table_count"`
}

func (h *SettingsHTTP) GetTableCount(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "settings.get_table_count")

	n, err := h.Svc.TableCount(ctx)
	if err != nil {
		return fail(c, l, "get_table_count_error", err)
	}
	return c.JSON(http.StatusOK, tableCountBody{TableCount: n})
}

func (h *SettingsHTTP) SetTableCount(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "settings.set_table_count")

	var req tableCountBody
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "set_table_count_error", "invalid body", err)
	}
	if err := h.Svc.SetTableCount(ctx, req.TableCount); err != nil {
		return fail(c, l, "set_table_count_error", err)
	}

	l.Info("set_table_count_success", "table_count", req.TableCount)
	return c.JSON(http.StatusOK, req)
}
