package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

type Orders interface {
	MarkPaid(ctx context.Context, id uint, settle order.SettleFunc) (*models.Order, error)
	MarkLedgered(ctx context.Context, id uint) error
	ListUnledgered(ctx context.Context) ([]models.Order, error)
}

type Ledger interface {
	RecordPayment(ctx context.Context, o *models.Order) (*models.DaybookTransaction, error)
}

type Request struct {
	Method          string        `json:"method"`
	AmountReceived  *money.Amount `json:"amount_received"`
	ChangeGiven     *money.Amount `json:"change_given"`
	ReferenceNumber string        `json:"reference_number"`
}

type Result struct {
	Order       *models.Order              `json:"order"`
	Transaction *models.DaybookTransaction `json:"transaction,omitempty"`
	ChangeGiven money.Amount               `json:"change_given"`
}

// Reconciler ties each paid order to exactly one daybook row.
type Reconciler struct {
	orders Orders
	ledger Ledger
	pub    realtime.Publisher
}

func NewReconciler(orders Orders, ledger Ledger, pub realtime.Publisher) *Reconciler {
	if pub == nil {
		pub = realtime.Discard{}
	}
	return &Reconciler{orders: orders, ledger: ledger, pub: pub}
}

// CompletePayment marks the order paid and appends its ledger row. When the ledger write
// fails the payment still stands: the result carries the paid order and the error is a
// *domain.ReconciliationWarning.
func (r *Reconciler) CompletePayment(ctx context.Context, orderID uint, req Request) (*Result, error) {
	l := logging.FromContext(ctx).With("component", "payment.reconciler", "order_id", orderID)

	method, err := validate(req)
	if err != nil {
		return nil, err
	}

	paid, err := r.orders.MarkPaid(ctx, orderID, func(o *models.Order) error {
		return settle(o, method, req)
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Order: paid, ChangeGiven: paid.ChangeGiven}
	tx, err := r.ledger.RecordPayment(ctx, paid)
	// events go out after the ledger attempt so a summary refetch on paymentCompleted sees the row
	r.pub.Publish(realtime.StatusEvent(paid))
	r.pub.Publish(realtime.PaymentEvent(paid))
	if err != nil {
		l.Error("ledger_append_failed", "reason", "payment committed without ledger row", "error", err)
		return res, &domain.ReconciliationWarning{OrderID: orderID, Err: err}
	}
	res.Transaction = tx

	if err := r.orders.MarkLedgered(ctx, orderID); err != nil {
		// the row exists; the next reconcile pass finds it through order_id and flips the flag
		l.Warn("mark_ledgered_failed", "error", err)
		return res, nil
	}
	paid.Ledgered = true
	return res, nil
}

func validate(req Request) (models.PaymentMethod, error) {
	method, err := models.ParsePaymentMethod(strings.TrimSpace(req.Method))
	if err != nil {
		return "", err
	}
	switch method {
	case models.PaymentCash:
		if req.AmountReceived == nil || !req.AmountReceived.IsPositive() {
			return "", fmt.Errorf("%w: cash payments need amount_received", domain.ErrValidation)
		}
		if strings.TrimSpace(req.ReferenceNumber) != "" {
			return "", fmt.Errorf("%w: cash payments take no reference_number", domain.ErrValidation)
		}
	default:
		if strings.TrimSpace(req.ReferenceNumber) == "" {
			return "", fmt.Errorf("%w: %s payments need reference_number", domain.ErrValidation, method)
		}
		if req.AmountReceived != nil || req.ChangeGiven != nil {
			return "", fmt.Errorf("%w: %s payments take no cash amounts", domain.ErrValidation, method)
		}
	}
	return method, nil
}

func settle(o *models.Order, method models.PaymentMethod, req Request) error {
	o.PaymentMethod = method
	if method != models.PaymentCash {
		o.ReferenceNumber = strings.TrimSpace(req.ReferenceNumber)
		return nil
	}
	received := *req.AmountReceived
	if received < o.Total {
		return fmt.Errorf("%w: received %s is less than total %s", domain.ErrValidation, received, o.Total)
	}
	change := received - o.Total
	if req.ChangeGiven != nil && *req.ChangeGiven != change {
		return fmt.Errorf("%w: change_given must be %s", domain.ErrValidation, change)
	}
	o.AmountReceived = received
	o.ChangeGiven = change
	return nil
}

// Reconcile appends missing ledger rows for paid orders and returns how many it fixed.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	l := logging.FromContext(ctx).With("component", "payment.reconciler")

	pending, err := r.orders.ListUnledgered(ctx)
	if err != nil {
		return 0, err
	}
	fixed := 0
	var firstErr error
	for i := range pending {
		o := &pending[i]
		if _, err := r.ledger.RecordPayment(ctx, o); err != nil {
			l.Warn("reconcile_failed", "order_id", o.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err := r.orders.MarkLedgered(ctx, o.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fixed++
	}
	if fixed > 0 {
		l.Info("reconcile_done", "fixed", fixed, "pending", len(pending))
	}
	return fixed, firstErr
}

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.Reconcile(ctx)
		}
	}
}
