package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type DaybookHTTP struct {
	Svc *daybook.Ledger
}

func (h *DaybookHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "daybook.list")

	rows, err := h.Svc.GetTransactions(ctx, c.QueryParam("date"), queryInt(c, "limit", 0))
	if err != nil {
		return fail(c, l, "list_transactions_error", err)
	}
	return c.JSON(http.StatusOK, rows)
}

func (h *DaybookHTTP) Append(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "daybook.append")

	var in daybook.AppendInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, l, "append_transaction_error", "invalid body", err)
	}

	row, err := h.Svc.Append(ctx, in)
	if err != nil {
		return fail(c, l, "append_transaction_error", err)
	}

	l.Info("append_transaction_success", "id", row.ID, "type", row.Type)
	return c.JSON(http.StatusCreated, row)
}

func (h *DaybookHTTP) Summary(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "daybook.summary")

	s, err := h.Svc.GetSummary(ctx, c.QueryParam("date"))
	if err != nil {
		return fail(c, l, "summary_error", err)
	}
	return c.JSON(http.StatusOK, s)
}
