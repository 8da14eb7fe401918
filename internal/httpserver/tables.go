package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type TableHTTP struct {
	Svc *session.Manager
}

func (h *TableHTTP) Bind(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "table.bind", "table_id", c.Param("id"))

	var req session.Customer
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "bind_table_error", "invalid body", err)
	}

	t, err := h.Svc.BindTable(ctx, c.Param("id"), req)
	if err != nil {
		return fail(c, l, "bind_table_error", err)
	}

	l.Info("bind_table_success")
	return c.JSON(http.StatusOK, t)
}

func (h *TableHTTP) GetCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "table.get_cart", "table_id", c.Param("id"))

	cart, err := h.Svc.GetCart(ctx, c.Param("id"))
	if err != nil {
		return fail(c, l, "get_cart_error", err)
	}
	return c.JSON(http.StatusOK, cart)
}

func (h *TableHTTP) MutateCart(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "table.mutate_cart", "table_id", c.Param("id"))

	var op session.CartOp
	if err := c.Bind(&op); err != nil {
		return badRequest(c, l, "mutate_cart_error", "invalid body", err)
	}

	cart, err := h.Svc.MutateCart(ctx, c.Param("id"), op)
	if err != nil {
		return fail(c, l, "mutate_cart_error", err)
	}

	l.Info("mutate_cart_success", "op", op.Op, "item_id", op.ItemID)
	return c.JSON(http.StatusOK, cart)
}

func (h *TableHTTP) Clear(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "table.clear", "table_id", c.Param("id"))

	res, err := h.Svc.ClearTable(ctx, c.Param("id"))
	if err != nil {
		return fail(c, l, "clear_table_error", err)
	}

	l.Info("clear_table_success", "cleared", res.Cleared, "orders", len(res.Orders))
	return c.JSON(http.StatusOK, res)
}

func (h *TableHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "table.list")

	tables, err := h.Svc.ListTables(ctx)
	if err != nil {
		return fail(c, l, "list_tables_error", err)
	}
	return c.JSON(http.StatusOK, tables)
}
