package order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/pkg/hash"
	"github.com/Skotchmaster/restaurant_pos/pkg/logging"
)

const (
	maxQuantity  = 99
	maxLines     = 50
	seqLockKey   = "order:seq"
	historyLimit = 100
)

type MenuLookup interface {
	Lookup(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
}

// Engine is the only code path that changes an order's status.
type Engine struct {
	Repo             *GormRepo
	Tables           *session.Manager
	Menu             MenuLookup
	Locks            *lock.Keyed
	Pub              realtime.Publisher
	DeleteSecretHash string
	Location         *time.Location
	Now              func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) loc() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

func (e *Engine) publish(ev realtime.Event) {
	if e.Pub != nil {
		e.Pub.Publish(ev)
	}
}

func (e *Engine) CreateOrder(ctx context.Context, req CreateRequest, staff bool) (*models.Order, error) {
	l := logging.FromContext(ctx).With("component", "order.engine")

	if err := validateCreate(&req); err != nil {
		return nil, err
	}
	items, total, err := e.priceLines(ctx, req.Items, staff)
	if err != nil {
		return nil, err
	}
	if req.Total != 0 && req.Total != total {
		l.Info("client_total_ignored", "client_total", req.Total.String(), "server_total", total.String())
	}

	var tableID string
	if req.Type == models.OrderTypeDineIn {
		tableID, err = e.Tables.ValidateTable(ctx, req.TableID)
		if err != nil {
			return nil, err
		}
		unlock := e.Locks.Lock(lock.TableKey(tableID))
		defer unlock()
	}
	unlockSeq := e.Locks.Lock(seqLockKey)
	defer unlockSeq()

	now := e.now()
	o := models.Order{
		Type:            req.Type,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Status:          models.OrderStatusPending,
		Total:           total,
		PaymentStatus:   models.PaymentUnpaid,
		Version:         1,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if tableID != "" {
		o.TableID = &tableID
	}

	err = e.Repo.Transaction(ctx, func(tx *GormRepo) error {
		if tableID != "" {
			if _, err := e.Tables.BindTx(ctx, tx.DB, tableID, session.Customer{Name: req.CustomerName, Phone: req.CustomerPhone}, now); err != nil {
				return err
			}
		}
		number, err := e.nextNumber(ctx, tx, now)
		if err != nil {
			return err
		}
		o.OrderNumber = number
		if err := tx.Create(ctx, &o); err != nil {
			return err
		}
		if tableID != "" {
			if _, err := e.Tables.RefreshStatus(ctx, tx.DB, tableID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(realtime.NewOrderEvent(&o))
	return &o, nil
}

func validateCreate(req *CreateRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	req.TableID = strings.TrimSpace(req.TableID)

	if req.CustomerName == "" || len(req.CustomerName) > 100 {
		return fmt.Errorf("%w: customer_name required (max 100 chars)", domain.ErrValidation)
	}
	if len(req.CustomerPhone) > 32 {
		return fmt.Errorf("%w: customer_phone too long", domain.ErrValidation)
	}
	switch req.Type {
	case models.OrderTypeDineIn:
		if req.TableID == "" {
			return fmt.Errorf("%w: table_id required for dine-in", domain.ErrInvalidTable)
		}
	case models.OrderTypeDelivery:
		if req.TableID != "" {
			return fmt.Errorf("%w: delivery orders have no table", domain.ErrValidation)
		}
		if req.CustomerPhone == "" || req.DeliveryAddress == "" {
			return fmt.Errorf("%w: delivery needs customer_phone and delivery_address", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown order type %q", domain.ErrValidation, req.Type)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: items required", domain.ErrValidation)
	}
	if len(req.Items) > maxLines {
		return fmt.Errorf("%w: at most %d lines", domain.ErrValidation, maxLines)
	}
	for i, it := range req.Items {
		if it.Quantity < 1 || it.Quantity > maxQuantity {
			return fmt.Errorf("%w: line %d quantity must be 1..%d", domain.ErrValidation, i, maxQuantity)
		}
		if !it.IsCustom && strings.TrimSpace(it.ItemID) == "" {
			return fmt.Errorf("%w: line %d item_id required", domain.ErrValidation, i)
		}
	}
	return nil
}

// priceLines snapshots catalog prices; client prices only count for custom lines.
func (e *Engine) priceLines(ctx context.Context, lines []Line, staff bool) ([]models.OrderItem, money.Amount, error) {
	ids := make([]string, 0, len(lines))
	for _, ln := range lines {
		if !ln.IsCustom {
			ids = append(ids, ln.ItemID)
		}
	}
	menu, err := e.Menu.Lookup(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	var total money.Amount
	items := make([]models.OrderItem, 0, len(lines))
	for i, ln := range lines {
		item := models.OrderItem{Quantity: ln.Quantity, IsCustom: ln.IsCustom}
		if ln.IsCustom {
			if !staff {
				return nil, 0, fmt.Errorf("%w: custom items are staff only", domain.ErrUnauthorized)
			}
			name := strings.TrimSpace(ln.Name)
			if name == "" || !ln.UnitPrice.IsPositive() {
				return nil, 0, fmt.Errorf("%w: custom line %d needs a name and a positive price", domain.ErrValidation, i)
			}
			item.ItemID = ln.ItemID
			item.Name = name
			item.UnitPrice = ln.UnitPrice
		} else {
			mi, ok := menu[ln.ItemID]
			if !ok || !mi.Available {
				return nil, 0, fmt.Errorf("%w: item %q is not on the menu", domain.ErrValidation, ln.ItemID)
			}
			item.ItemID = mi.ID
			item.Name = mi.Name
			item.UnitPrice = mi.Price
		}
		item.LineTotal = item.UnitPrice.Mul(item.Quantity)
		total += item.LineTotal
		items = append(items, item)
	}
	return items, total, nil
}

// nextNumber issues ORD-YYYYMMDD-NNNN, counting per business day. Callers hold seqLockKey.
func (e *Engine) nextNumber(ctx context.Context, tx *GormRepo, now time.Time) (string, error) {
	prefix := "ORD-" + now.In(e.loc()).Format("20060102") + "-"
	last, err := tx.LastNumber(ctx, prefix)
	if err != nil {
		return "", err
	}
	n := 0
	if last != "" {
		n, _ = strconv.Atoi(strings.TrimPrefix(last, prefix))
	}
	return fmt.Sprintf("%s%04d", prefix, n+1), nil
}

// lockOrder takes the table lock before the order lock, the same order clearTable uses.
func (e *Engine) lockOrder(ctx context.Context, id uint) (func(), error) {
	tableID, err := e.Repo.TableOf(ctx, id)
	if err != nil {
		return nil, err
	}
	var unlockTable func()
	if tableID != nil {
		unlockTable = e.Locks.Lock(lock.TableKey(*tableID))
	}
	unlockOrder := e.Locks.Lock(lock.OrderKey(id))
	return func() {
		unlockOrder()
		if unlockTable != nil {
			unlockTable()
		}
	}, nil
}

func (e *Engine) UpdateStatus(ctx context.Context, id uint, to models.OrderStatus) (*models.Order, error) {
	unlock, err := e.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	var o *models.Order
	err = e.Repo.Transaction(ctx, func(tx *GormRepo) error {
		var err error
		o, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.IsArchived() {
			return fmt.Errorf("%w: order %s is archived", domain.ErrInvalidTransition, o.OrderNumber)
		}
		if !CanTransition(o.Status, to) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, o.Status, to)
		}
		if to == models.OrderStatusCompleted && o.Type == models.OrderTypeDineIn {
			return fmt.Errorf("%w: dine-in orders complete through payment or clearing the table", domain.ErrInvalidTransition)
		}

		updates := map[string]any{"status": to, "updated_at": now}
		archive := o.Type == models.OrderTypeDelivery &&
			(to == models.OrderStatusCompleted || to == models.OrderStatusCancelled)
		if to == models.OrderStatusCompleted {
			updates["completed_at"] = now
			o.CompletedAt = &now
		}
		if archive {
			updates["archived_at"] = now
		}
		if err := tx.ApplyVersioned(ctx, o, updates); err != nil {
			return err
		}
		o.Status, o.UpdatedAt = to, now
		if archive {
			o.ArchivedAt = &now
		}

		if o.TableID != nil {
			if _, err := e.Tables.RefreshStatus(ctx, tx.DB, *o.TableID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(realtime.StatusEvent(o))
	return o, nil
}

// ArchiveForTable completes ready orders and archives every active order of a table.
// It fails with ErrInvalidTransition, changing nothing, while any order is still in the kitchen.
func (e *Engine) ArchiveForTable(ctx context.Context, db *gorm.DB, tableID string, now time.Time) ([]models.Order, error) {
	tx := &GormRepo{DB: db}
	active, err := tx.ActiveForTableLocked(ctx, tableID)
	if err != nil {
		return nil, err
	}
	for _, o := range active {
		if inKitchen(o.Status) {
			return nil, fmt.Errorf("%w: order %s is still %s", domain.ErrInvalidTransition, o.OrderNumber, o.Status)
		}
	}

	for i := range active {
		o := &active[i]
		updates := map[string]any{"archived_at": now, "updated_at": now}
		if o.Status == models.OrderStatusReady {
			updates["status"] = models.OrderStatusCompleted
			updates["completed_at"] = now
		}
		if err := tx.ApplyVersioned(ctx, o, updates); err != nil {
			return nil, err
		}
		if o.Status == models.OrderStatusReady {
			o.Status = models.OrderStatusCompleted
			o.CompletedAt = &now
		}
		o.ArchivedAt, o.UpdatedAt = &now, now
	}
	return active, nil
}

// MarkPaid records a payment on a ready or completed order. The update is conditional on
// payment_status so a second payer gets ErrAlreadyPaid even across processes.
func (e *Engine) MarkPaid(ctx context.Context, id uint, settle SettleFunc) (*models.Order, error) {
	unlock, err := e.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := e.now()
	var o *models.Order
	err = e.Repo.Transaction(ctx, func(tx *GormRepo) error {
		var err error
		o, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if o.PaymentStatus == models.PaymentPaid {
			return fmt.Errorf("%w: order %s", domain.ErrAlreadyPaid, o.OrderNumber)
		}
		if !isPayable(o.Status) {
			return fmt.Errorf("%w: order %s is %s and cannot be paid yet", domain.ErrInvalidTransition, o.OrderNumber, o.Status)
		}
		if err := settle(o); err != nil {
			return err
		}

		updates := map[string]any{
			"payment_status":   models.PaymentPaid,
			"payment_method":   o.PaymentMethod,
			"amount_received":  o.AmountReceived,
			"change_given":     o.ChangeGiven,
			"reference_number": o.ReferenceNumber,
			"paid_at":          now,
			"ledgered":         false,
			"version":          o.Version + 1,
			"updated_at":       now,
		}
		completing := o.Status == models.OrderStatusReady
		if completing {
			updates["status"] = models.OrderStatusCompleted
			updates["completed_at"] = now
		}
		archive := o.Type == models.OrderTypeDelivery && !o.IsArchived()
		if archive {
			updates["archived_at"] = now
		}
		ok, err := tx.MarkPaidIfUnpaid(ctx, o.ID, updates)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order %s", domain.ErrAlreadyPaid, o.OrderNumber)
		}

		o.PaymentStatus, o.PaidAt, o.Ledgered = models.PaymentPaid, &now, false
		o.Version++
		o.UpdatedAt = now
		if completing {
			o.Status, o.CompletedAt = models.OrderStatusCompleted, &now
		}
		if archive {
			o.ArchivedAt = &now
		}

		if o.TableID != nil {
			if _, err := e.Tables.RefreshStatus(ctx, tx.DB, *o.TableID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (e *Engine) MarkLedgered(ctx context.Context, id uint) error {
	return e.Repo.SetLedgered(ctx, id)
}

func (e *Engine) ListUnledgered(ctx context.Context) ([]models.Order, error) {
	return e.Repo.ListUnledgered(ctx)
}

func (e *Engine) Get(ctx context.Context, id uint) (*models.Order, error) {
	return e.Repo.Get(ctx, id)
}

// ListActive returns non-archived orders, oldest first.
func (e *Engine) ListActive(ctx context.Context, f Filter) ([]models.Order, error) {
	return e.Repo.ListActive(ctx, f)
}

// ListHistory returns orders archived on the given business date, newest first.
func (e *Engine) ListHistory(ctx context.Context, date string, limit int) ([]models.Order, error) {
	start, end, err := dayBounds(date, e.now(), e.loc())
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = historyLimit
	}
	return e.Repo.ListArchivedBetween(ctx, start, end, limit)
}

func dayBounds(date string, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	var day time.Time
	if date == "" {
		n := now.In(loc)
		day = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	} else {
		d, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", domain.ErrValidation)
		}
		day = d
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// DeleteOrder hard-deletes an archived order. Ledger rows that reference it stay.
func (e *Engine) DeleteOrder(ctx context.Context, id uint, secret string) (*models.Order, error) {
	if !hash.CheckPassword(e.DeleteSecretHash, secret) {
		return nil, fmt.Errorf("%w: delete secret mismatch", domain.ErrUnauthorized)
	}
	unlock, err := e.lockOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var o *models.Order
	err = e.Repo.Transaction(ctx, func(tx *GormRepo) error {
		var err error
		o, err = tx.LoadForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !o.IsArchived() {
			return fmt.Errorf("%w: only archived orders can be deleted", domain.ErrInvalidTransition)
		}
		return tx.DeleteWithItems(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	e.publish(realtime.DeletedEvent(o))
	return o, nil
}
