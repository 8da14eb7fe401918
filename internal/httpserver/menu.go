package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/menu"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type MenuHTTP struct {
	Svc *menu.Catalog
}

func (h *MenuHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "menu.list")

	items, err := h.Svc.List(ctx)
	if err != nil {
		return fail(c, l, "list_menu_error", err)
	}
	return c.JSON(http.StatusOK, items)
}
