package orderclient

import (
	"sort"
	"strconv"
	"sync"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
)

// OrderView is the slice of an order a terminal keeps from events.
type OrderView struct {
	ID            string
	OrderNumber   string
	Type          models.OrderType
	TableID       string
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	Total         money.Amount
	Version       int64
}

type TableView struct {
	ID      string
	Status  models.TableStatus
	Version int64
}

type TransactionView struct {
	ID     string
	Type   models.TransactionType
	Amount money.Amount
}

// Mirror is a terminal's local copy of the active state. Events older than what the
// mirror already holds for an entity are ignored, so applying an event twice is the
// same as applying it once.
type Mirror struct {
	mu           sync.RWMutex
	versions     map[string]int64
	orders       map[string]OrderView
	tables       map[string]TableView
	transactions map[string]TransactionView
	stale        bool
}

func NewMirror() *Mirror {
	m := &Mirror{}
	m.clear()
	return m
}

func (m *Mirror) clear() {
	m.versions = map[string]int64{}
	m.orders = map[string]OrderView{}
	m.tables = map[string]TableView{}
	m.transactions = map[string]TransactionView{}
}

// Reset replaces everything with a snapshot. A non-authoritative snapshot marks the
// mirror stale until the next authoritative one.
func (m *Mirror) Reset(s *models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clear()
	m.stale = !s.Authoritative
	for _, t := range s.Tables {
		m.tables[t.ID] = TableView{ID: t.ID, Status: t.Status, Version: t.Version}
		m.versions["table:"+t.ID] = t.Version
	}
	for _, o := range s.ActiveOrders {
		id := strconv.FormatUint(uint64(o.ID), 10)
		m.orders[id] = OrderView{
			ID:            id,
			OrderNumber:   o.OrderNumber,
			Type:          o.Type,
			TableID:       o.Table(),
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			Total:         o.Total,
			Version:       o.Version,
		}
		m.versions["order:"+id] = o.Version
	}
}

// Apply folds one event in and reports whether it changed anything.
func (m *Mirror) Apply(e realtime.Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := e.Key()
	if v, ok := m.versions[key]; ok && e.Version < v {
		return false
	}
	m.versions[key] = e.Version

	switch e.Type {
	case realtime.NewOrder, realtime.OrderStatusUpdated, realtime.PaymentCompleted:
		if archived, _ := e.Data["archived"].(bool); archived {
			_, had := m.orders[e.EntityID]
			delete(m.orders, e.EntityID)
			return had
		}
		total, _ := money.Parse(e.String("total"))
		next := OrderView{
			ID:            e.EntityID,
			OrderNumber:   e.String("orderNumber"),
			Type:          models.OrderType(e.String("orderType")),
			TableID:       e.String("tableId"),
			Status:        models.OrderStatus(e.String("status")),
			PaymentStatus: models.PaymentStatus(e.String("paymentStatus")),
			Total:         total,
			Version:       e.Version,
		}
		prev, had := m.orders[e.EntityID]
		m.orders[e.EntityID] = next
		return !had || prev != next
	case realtime.OrderDeleted:
		_, had := m.orders[e.EntityID]
		delete(m.orders, e.EntityID)
		return had
	case realtime.TableCleared:
		changed := false
		for _, id := range orderIDs(e.Data["orderIds"]) {
			if _, had := m.orders[id]; had {
				delete(m.orders, id)
				changed = true
			}
		}
		next := TableView{ID: e.EntityID, Status: models.TableStatus(e.String("status")), Version: e.Version}
		if prev, had := m.tables[e.EntityID]; !had || prev != next {
			m.tables[e.EntityID] = next
			changed = true
		}
		return changed
	case realtime.TransactionCreated:
		if _, had := m.transactions[e.EntityID]; had {
			return false
		}
		amount, _ := money.Parse(e.String("amount"))
		m.transactions[e.EntityID] = TransactionView{ID: e.EntityID, Type: models.TransactionType(e.String("txType")), Amount: amount}
		return true
	}
	return false
}

// orderIDs accepts the id list as it arrives over JSON ([]any of float64) or in-process ([]uint).
func orderIDs(v any) []string {
	var out []string
	switch ids := v.(type) {
	case []any:
		for _, raw := range ids {
			if f, ok := raw.(float64); ok {
				out = append(out, strconv.FormatFloat(f, 'f', -1, 64))
			}
		}
	case []uint:
		for _, id := range ids {
			out = append(out, strconv.FormatUint(uint64(id), 10))
		}
	}
	return out
}

func (m *Mirror) Orders() []OrderView {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderView, 0, len(m.orders))
	for _, o := range m.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Mirror) Order(id string) (OrderView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *Mirror) Table(id string) (TableView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[id]
	return t, ok
}

func (m *Mirror) Transactions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transactions)
}

func (m *Mirror) Stale() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stale
}
