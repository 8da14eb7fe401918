package session

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/settings"
)

// CartTTL is how long an untouched cart survives.
const CartTTL = 60 * time.Minute

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OrderArchiver moves a table's active orders to their archived end state inside tx.
type OrderArchiver interface {
	ArchiveForTable(ctx context.Context, tx *gorm.DB, tableID string, now time.Time) ([]models.Order, error)
}

type Manager struct {
	Repo     *GormRepo
	Settings *settings.Store
	Locks    *lock.Keyed
	Pub      realtime.Publisher
	Orders   OrderArchiver
	Now      func() time.Time
}

type Cart struct {
	TableID     string            `json:"table_id"`
	Items       []models.CartLine `json:"items"`
	Total       money.Amount      `json:"total"`
	LastWriteAt *time.Time        `json:"last_write_at,omitempty"`
}

type CartOp struct {
	Op        string       `json:"op"`
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	IsCustom  bool         `json:"is_custom"`
}

const (
	OpAdd         = "add"
	OpRemove      = "remove"
	OpSetQuantity = "set_quantity"
)

type ClearResult struct {
	TableID string               `json:"table_id"`
	Cleared bool                 `json:"cleared"`
	Table   *models.Table        `json:"table"`
	Orders  []models.Order       `json:"archived_orders"`
	History *models.TableHistory `json:"history,omitempty"`
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Manager) publish(e realtime.Event) {
	if m.Pub != nil {
		m.Pub.Publish(e)
	}
}

// ValidateTable returns the canonical id of a table number within [1, table count].
func (m *Manager) ValidateTable(ctx context.Context, raw string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: table %q is not a number", domain.ErrInvalidTable, raw)
	}
	count, err := m.Settings.TableCount(ctx)
	if err != nil {
		return "", err
	}
	if n < 1 || n > count {
		return "", fmt.Errorf("%w: table %d outside 1..%d", domain.ErrInvalidTable, n, count)
	}
	return strconv.Itoa(n), nil
}

func (m *Manager) BindTable(ctx context.Context, raw string, c Customer) (*models.Table, error) {
	id, err := m.ValidateTable(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(c.Name) > 100 || len(c.Phone) > 32 {
		return nil, fmt.Errorf("%w: customer fields too long", domain.ErrValidation)
	}
	unlock := m.Locks.Lock(lock.TableKey(id))
	defer unlock()

	var t *models.Table
	err = m.Repo.Transaction(ctx, func(tx *GormRepo) error {
		var err error
		t, err = bind(ctx, tx, id, c, m.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// BindTx makes sure the table row exists and attaches the customer if no one is seated.
// The caller holds the table lock.
func (m *Manager) BindTx(ctx context.Context, tx *gorm.DB, id string, c Customer, now time.Time) (*models.Table, error) {
	return bind(ctx, &GormRepo{DB: tx}, id, c, now)
}

func bind(ctx context.Context, tx *GormRepo, id string, c Customer, now time.Time) (*models.Table, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)

	t, err := tx.LockTable(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		t = &models.Table{ID: id, Status: models.TableEmpty, Version: 1, UpdatedAt: now}
		if c.Name != "" {
			t.CustomerName, t.CustomerPhone, t.SessionStart = c.Name, c.Phone, &now
		}
		if err := tx.CreateTable(ctx, t); err != nil {
			return nil, err
		}
		return t, nil
	}

	if c.Name == "" || t.CustomerName != "" {
		return t, nil
	}
	start := t.SessionStart
	if start == nil {
		start = &now
	}
	if err := tx.SeatCustomer(ctx, id, c, start, now); err != nil {
		return nil, err
	}
	t.CustomerName, t.CustomerPhone, t.SessionStart = c.Name, c.Phone, start
	t.Version++
	return t, nil
}

// RefreshStatus rewrites the derived status of a table inside the caller's transaction.
func (m *Manager) RefreshStatus(ctx context.Context, tx *gorm.DB, id string, now time.Time) (*models.Table, error) {
	repo := &GormRepo{DB: tx}
	active, err := repo.ActiveOrders(ctx, id)
	if err != nil {
		return nil, err
	}
	status := DeriveStatus(active)

	found, err := repo.SetStatus(ctx, id, status, now)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := repo.CreateTable(ctx, &models.Table{ID: id, Status: status, Version: 1, UpdatedAt: now}); err != nil {
			return nil, err
		}
	}
	t, err := repo.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}
	t.ActiveOrders = len(active)
	return t, nil
}

func (m *Manager) GetCart(ctx context.Context, raw string) (*Cart, error) {
	id, err := m.ValidateTable(ctx, raw)
	if err != nil {
		return nil, err
	}
	unlock := m.Locks.Lock(lock.TableKey(id))
	defer unlock()

	var cart *Cart
	err = m.Repo.Transaction(ctx, func(tx *GormRepo) error {
		row, err := loadSession(ctx, tx, id, m.now())
		if err != nil {
			return err
		}
		cart = toCart(id, row)
		return nil
	})
	return cart, err
}

func (m *Manager) MutateCart(ctx context.Context, raw string, op CartOp) (*Cart, error) {
	id, err := m.ValidateTable(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := validateOp(op); err != nil {
		return nil, err
	}
	unlock := m.Locks.Lock(lock.TableKey(id))
	defer unlock()

	now := m.now()
	var cart *Cart
	err = m.Repo.Transaction(ctx, func(tx *GormRepo) error {
		row, err := loadSession(ctx, tx, id, now)
		if err != nil {
			return err
		}
		var lines []models.CartLine
		if row != nil {
			lines = row.Items
		}
		lines, err = applyOp(lines, op)
		if err != nil {
			return err
		}
		if lines == nil {
			lines = []models.CartLine{}
		}
		next := models.TableSession{TableID: id, Items: datatypes.JSONSlice[models.CartLine](lines), LastWriteAt: now}
		if err := tx.SaveCart(ctx, &next); err != nil {
			return err
		}
		cart = toCart(id, &next)
		return nil
	})
	return cart, err
}

// loadSession returns nil when there is no live cart; an expired one is deleted on the way.
func loadSession(ctx context.Context, tx *GormRepo, id string, now time.Time) (*models.TableSession, error) {
	row, err := tx.LoadCart(ctx, id)
	if err != nil || row == nil {
		return nil, err
	}
	if now.Sub(row.LastWriteAt) > CartTTL {
		if err := tx.DeleteCart(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return row, nil
}

func validateOp(op CartOp) error {
	switch op.Op {
	case OpAdd, OpRemove, OpSetQuantity:
	default:
		return fmt.Errorf("%w: unknown cart op %q", domain.ErrValidation, op.Op)
	}
	if strings.TrimSpace(op.ItemID) == "" {
		return fmt.Errorf("%w: item_id required", domain.ErrValidation)
	}
	if op.UnitPrice < 0 {
		return fmt.Errorf("%w: unit_price must be >= 0", domain.ErrValidation)
	}
	return nil
}

func applyOp(lines []models.CartLine, op CartOp) ([]models.CartLine, error) {
	idx := -1
	for i := range lines {
		if lines[i].ItemID == op.ItemID {
			idx = i
			break
		}
	}

	switch op.Op {
	case OpRemove:
		if idx < 0 {
			return lines, nil
		}
		return append(lines[:idx], lines[idx+1:]...), nil
	case OpSetQuantity:
		if idx < 0 {
			return nil, fmt.Errorf("%w: item %q not in cart", domain.ErrValidation, op.ItemID)
		}
		if op.Quantity <= 0 {
			return append(lines[:idx], lines[idx+1:]...), nil
		}
		lines[idx].Quantity = op.Quantity
		return lines, nil
	}

	qty := op.Quantity
	if qty == 0 {
		qty = 1
	}
	if idx >= 0 {
		lines[idx].Quantity += qty
		if lines[idx].Quantity <= 0 {
			return append(lines[:idx], lines[idx+1:]...), nil
		}
		return lines, nil
	}
	if qty < 0 {
		return lines, nil
	}
	if strings.TrimSpace(op.Name) == "" {
		return nil, fmt.Errorf("%w: name required for a new line", domain.ErrValidation)
	}
	return append(lines, models.CartLine{
		ItemID:    op.ItemID,
		Name:      op.Name,
		UnitPrice: op.UnitPrice,
		Quantity:  qty,
		IsCustom:  op.IsCustom,
	}), nil
}

func toCart(id string, row *models.TableSession) *Cart {
	c := &Cart{TableID: id, Items: []models.CartLine{}}
	if row == nil {
		return c
	}
	c.Items = append(c.Items, row.Items...)
	for _, l := range c.Items {
		c.Total += l.UnitPrice.Mul(l.Quantity)
	}
	at := row.LastWriteAt
	c.LastWriteAt = &at
	return c
}

// ClearTable archives everything on the table in one transaction. It refuses while any
// order is still being prepared and is a quiet no-op when nothing is active.
func (m *Manager) ClearTable(ctx context.Context, raw string) (*ClearResult, error) {
	id, err := m.ValidateTable(ctx, raw)
	if err != nil {
		return nil, err
	}
	unlock := m.Locks.Lock(lock.TableKey(id))
	defer unlock()

	now := m.now()
	res := &ClearResult{TableID: id}
	err = m.Repo.Transaction(ctx, func(tx *GormRepo) error {
		t, err := tx.LockTable(ctx, id)
		if err != nil {
			return err
		}
		if t == nil {
			res.Table = &models.Table{ID: id, Status: models.TableEmpty}
			return tx.DeleteCart(ctx, id)
		}

		archived, err := m.Orders.ArchiveForTable(ctx, tx.DB, id, now)
		if err != nil {
			return err
		}

		if len(archived) > 0 {
			h := models.TableHistory{
				TableID:       id,
				CustomerName:  t.CustomerName,
				CustomerPhone: t.CustomerPhone,
				SessionStart:  t.SessionStart,
				ClearedAt:     now,
				OrderIDs:      datatypes.JSONSlice[uint]{},
				OrderCount:    len(archived),
			}
			for _, o := range archived {
				h.OrderIDs = append(h.OrderIDs, o.ID)
				if o.Status != models.OrderStatusCancelled {
					h.Total += o.Total
				}
			}
			if err := tx.CreateHistory(ctx, &h); err != nil {
				return err
			}
			res.History = &h
			res.Cleared = true
		}

		if err := tx.ResetTable(ctx, id, now); err != nil {
			return err
		}
		if err := tx.DeleteCart(ctx, id); err != nil {
			return err
		}
		if t, err = tx.GetTable(ctx, id); err != nil {
			return err
		}
		res.Table = t
		res.Orders = archived
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.Cleared {
		for i := range res.Orders {
			m.publish(realtime.StatusEvent(&res.Orders[i]))
		}
		m.publish(realtime.TableClearedEvent(res.Table, res.History.OrderIDs))
	}
	return res, nil
}

func (m *Manager) GetTable(ctx context.Context, raw string) (*models.Table, error) {
	id, err := m.ValidateTable(ctx, raw)
	if err != nil {
		return nil, err
	}
	t, err := m.Repo.GetTable(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return &models.Table{ID: id, Status: models.TableEmpty}, nil
	}
	if t.ActiveOrders, err = m.Repo.CountActiveOrders(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTables returns every table from 1 to the configured count, unseen ones as empty.
func (m *Manager) ListTables(ctx context.Context) ([]models.Table, error) {
	count, err := m.Settings.TableCount(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := m.Repo.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	active, err := m.Repo.ActiveOrderCounts(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Table, len(rows))
	for _, t := range rows {
		byID[t.ID] = t
	}
	out := make([]models.Table, 0, count)
	for n := 1; n <= count; n++ {
		id := strconv.Itoa(n)
		t, ok := byID[id]
		if !ok {
			t = models.Table{ID: id, Status: models.TableEmpty}
		}
		t.ActiveOrders = active[id]
		out = append(out, t)
		delete(byID, id)
	}
	// tables left over after the count was lowered stay visible while they hold orders
	var extra []models.Table
	for id, t := range byID {
		if active[id] > 0 {
			t.ActiveOrders = active[id]
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool {
		a, _ := strconv.Atoi(extra[i].ID)
		b, _ := strconv.Atoi(extra[j].ID)
		return a < b
	})
	return append(out, extra...), nil
}
