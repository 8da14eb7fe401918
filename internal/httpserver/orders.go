package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/search"
	middleware "github.com/Skotchmaster/restaurant_pos/pkg/middleware/auth"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

const HeaderDeleteSecret = "X-Delete-Secret"

type OrderHTTP struct {
	Svc   *order.Engine
	Index search.Index
}

type statusRequest struct {
	Status string `json:"status"`
}

type searchResponse struct {
	Total  int64          `json:"total"`
	Orders []models.Order `json:"orders"`
}

func (h *OrderHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.create_order")

	var req order.CreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "create_order_error", "invalid body", err)
	}

	staff := tokens.IsStaff(middleware.RoleFrom(c))
	o, err := h.Svc.CreateOrder(ctx, req, staff)
	if err != nil {
		return fail(c, l, "create_order_error", err)
	}

	l.Info("create_order_success", "order_id", o.ID, "order_number", o.OrderNumber)
	return c.JSON(http.StatusCreated, o)
}

func (h *OrderHTTP) ListActive(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list_active")

	f := order.Filter{
		TableID: strings.TrimSpace(c.QueryParam("table_id")),
		Type:    models.OrderType(strings.TrimSpace(c.QueryParam("type"))),
	}
	orders, err := h.Svc.ListActive(ctx, f)
	if err != nil {
		return fail(c, l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHTTP) Get(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_order")

	id, err := parseID(c)
	if err != nil {
		return badRequest(c, l, "get_order_error", "invalid id", err)
	}
	o, err := h.Svc.Get(ctx, id)
	if err != nil {
		return fail(c, l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	id, err := parseID(c)
	if err != nil {
		return badRequest(c, l, "update_status_error", "invalid id", err)
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "update_status_error", "invalid body", err)
	}
	to, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		return fail(c, l, "update_status_error", err)
	}

	o, err := h.Svc.UpdateStatus(ctx, id, to)
	if err != nil {
		return fail(c, l, "update_status_error", err)
	}

	l.Info("update_status_success", "order_id", id, "status", o.Status)
	return c.JSON(http.StatusOK, o)
}

func (h *OrderHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.delete_order")

	id, err := parseID(c)
	if err != nil {
		return badRequest(c, l, "delete_order_error", "invalid id", err)
	}

	o, err := h.Svc.DeleteOrder(ctx, id, c.Request().Header.Get(HeaderDeleteSecret))
	if err != nil {
		return fail(c, l, "delete_order_error", err)
	}

	l.Info("delete_order_success", "order_id", id, "order_number", o.OrderNumber)
	return c.JSON(http.StatusOK, map[string]any{"status": "deleted", "id": o.ID, "order_number": o.OrderNumber})
}

func (h *OrderHTTP) History(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.history")

	orders, err := h.Svc.ListHistory(ctx, c.QueryParam("date"), queryInt(c, "limit", 0))
	if err != nil {
		return fail(c, l, "history_error", err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.search")

	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return badRequest(c, l, "search_error", "q is required", nil)
	}
	from, size := pageBounds(c)

	total, orders, err := h.Index.Search(ctx, q, from, size)
	if err != nil {
		return fail(c, l, "search_error", err)
	}
	return c.JSON(http.StatusOK, searchResponse{Total: total, Orders: orders})
}
