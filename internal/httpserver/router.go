package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	middleware "github.com/Skotchmaster/restaurant_pos/pkg/middleware/auth"
	"github.com/Skotchmaster/restaurant_pos/pkg/tokens"
)

type Deps struct {
	AuthHandler     *AuthHTTP
	TableHandler    *TableHTTP
	OrderHandler    *OrderHTTP
	PaymentHandler  *PaymentHTTP
	DaybookHandler  *DaybookHTTP
	SettingsHandler *SettingsHTTP
	StateHandler    *StateHTTP
	MenuHandler     *MenuHTTP
	Idempotency     *Idempotency
	JWTSecret       []byte
	// Ready reports whether storage is reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	roleMW := middleware.NewRoleMiddleware(d.JWTSecret)
	staff := roleMW.RequireRole(tokens.RoleAdmin, tokens.RoleReception)
	admin := roleMW.RequireRole(tokens.RoleAdmin)

	e.POST("/auth/login", d.AuthHandler.Login)
	e.POST("/auth/logout", d.AuthHandler.Logout)

	api := e.Group("", roleMW.Identify)
	if d.Idempotency != nil {
		api.Use(d.Idempotency.Middleware)
	}

	api.GET("/menu", d.MenuHandler.List)

	tables := api.Group("/tables")
	tables.GET("", d.TableHandler.List, staff)
	tables.POST("/:id/bind", d.TableHandler.Bind)
	tables.GET("/:id/cart", d.TableHandler.GetCart)
	tables.POST("/:id/cart", d.TableHandler.MutateCart)
	tables.POST("/:id/clear", d.TableHandler.Clear, staff)

	orders := api.Group("/orders")
	orders.POST("", d.OrderHandler.Create)
	orders.GET("", d.OrderHandler.ListActive, staff)
	orders.GET("/history", d.OrderHandler.History, staff)
	orders.GET("/history/search", d.OrderHandler.Search, staff)
	orders.GET("/:id", d.OrderHandler.Get)
	orders.PATCH("/:id/status", d.OrderHandler.UpdateStatus, admin)
	orders.DELETE("/:id", d.OrderHandler.Delete, admin)
	orders.POST("/:id/payment", d.PaymentHandler.Complete, staff)

	api.POST("/payments/reconcile", d.PaymentHandler.Reconcile, admin)

	daybook := api.Group("/daybook", staff)
	daybook.GET("/transactions", d.DaybookHandler.List)
	daybook.POST("/transactions", d.DaybookHandler.Append)
	daybook.GET("/summary", d.DaybookHandler.Summary)

	api.GET("/settings/table-count", d.SettingsHandler.GetTableCount)
	api.PUT("/settings/table-count", d.SettingsHandler.SetTableCount, admin)

	api.GET("/state", d.StateHandler.Snapshot, staff)
	api.GET("/ws", d.StateHandler.Stream, staff)
}
