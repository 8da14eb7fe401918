package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/payment"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type PaymentHTTP struct {
	Svc *payment.Reconciler
}

type paymentResponse struct {
	*payment.Result
	Warning string `json:"warning,omitempty"`
}

func (h *PaymentHTTP) Complete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.complete")

	id, err := parseID(c)
	if err != nil {
		return badRequest(c, l, "complete_payment_error", "invalid id", err)
	}
	var req payment.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, l, "complete_payment_error", "invalid body", err)
	}

	res, err := h.Svc.CompletePayment(ctx, id, req)
	var warn *domain.ReconciliationWarning
	switch {
	case errors.As(err, &warn) && res != nil:
		// the money was taken; the ledger row is retried by the reconciler
		l.Warn("complete_payment_warning", "status", http.StatusOK, "reason", "ledger pending", "order_id", id, "error", err)
		return c.JSON(http.StatusOK, paymentResponse{Result: res, Warning: warn.Error()})
	case err != nil:
		return fail(c, l, "complete_payment_error", err)
	}

	l.Info("complete_payment_success", "order_id", id, "method", req.Method)
	return c.JSON(http.StatusOK, paymentResponse{Result: res})
}

func (h *PaymentHTTP) Reconcile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "payment.reconcile")

	n, err := h.Svc.Reconcile(ctx)
	if err != nil {
		return fail(c, l, "reconcile_error", err)
	}

	l.Info("reconcile_success", "recorded", n)
	return c.JSON(http.StatusOK, map[string]int{"recorded": n})
}
