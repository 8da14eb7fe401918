// Package testutil wires the services over an in-memory sqlite database for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/internal/lock"
	"github.com/Skotchmaster/restaurant_pos/internal/menu"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/payment"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/internal/settings"
	pkgdb "github.com/Skotchmaster/restaurant_pos/pkg/db"
	"github.com/Skotchmaster/restaurant_pos/pkg/hash"
)

const DeleteSecret = "let-me-delete"

var (
	secretOnce sync.Once
	secretHash string
)

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	db, err := pkgdb.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))
	t.Cleanup(func() { _ = pkgdb.Close(db) })
	return db
}

type Stack struct {
	DB       *gorm.DB
	Clock    *Clock
	Location *time.Location
	Events   *realtime.Recorder
	Settings *settings.Store
	Menu     *menu.Catalog
	Tables   *session.Manager
	Orders   *order.Engine
	Ledger   *daybook.Ledger
	Payments *payment.Reconciler
}

// NewStack starts the clock at 2025-03-10 11:45 Kathmandu time with 12 tables and a small menu.
func NewStack(t testing.TB) *Stack {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kathmandu")
	require.NoError(t, err)

	secretOnce.Do(func() {
		secretHash, err = hash.HashPassword(DeleteSecret)
	})
	require.NoError(t, err)

	db := NewDB(t)
	s := &Stack{
		DB:       db,
		Clock:    NewClock(time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)),
		Location: loc,
		Events:   &realtime.Recorder{},
	}
	locks := lock.NewKeyed()
	s.Settings = &settings.Store{DB: db, DefaultTableCount: 12}
	s.Menu = &menu.Catalog{DB: db}
	s.Tables = &session.Manager{Repo: &session.GormRepo{DB: db}, Settings: s.Settings, Locks: locks, Pub: s.Events, Now: s.Clock.Now}
	s.Orders = &order.Engine{
		Repo:             &order.GormRepo{DB: db},
		Tables:           s.Tables,
		Menu:             s.Menu,
		Locks:            locks,
		Pub:              s.Events,
		DeleteSecretHash: secretHash,
		Location:         loc,
		Now:              s.Clock.Now,
	}
	s.Tables.Orders = s.Orders
	s.Ledger = &daybook.Ledger{DB: db, Pub: s.Events, Location: loc, Now: s.Clock.Now}
	s.Payments = payment.NewReconciler(s.Orders, s.Ledger, s.Events)

	require.NoError(t, s.Menu.Upsert(context.Background(), []models.MenuItem{
		{ID: "momo", Name: "Chicken Momo", Price: money.MustParse("180.00"), Available: true},
		{ID: "chowmein", Name: "Veg Chowmein", Price: money.MustParse("150.00"), Available: true},
		{ID: "tea", Name: "Milk Tea", Price: money.MustParse("40.00"), Available: true},
		{ID: "special", Name: "Chef Special", Price: money.MustParse("900.00"), Available: false},
	}))
	return s
}

func (s *Stack) DineIn(t testing.TB, table string, lines ...order.Line) *models.Order {
	t.Helper()
	if len(lines) == 0 {
		lines = []order.Line{{ItemID: "momo", Quantity: 2}}
	}
	o, err := s.Orders.CreateOrder(context.Background(), order.CreateRequest{
		Type:         models.OrderTypeDineIn,
		TableID:      table,
		CustomerName: "Asha",
		Items:        lines,
	}, false)
	require.NoError(t, err)
	return o
}

func (s *Stack) Delivery(t testing.TB, lines ...order.Line) *models.Order {
	t.Helper()
	if len(lines) == 0 {
		lines = []order.Line{{ItemID: "chowmein", Quantity: 1}}
	}
	o, err := s.Orders.CreateOrder(context.Background(), order.CreateRequest{
		Type:            models.OrderTypeDelivery,
		CustomerName:    "Bikash",
		CustomerPhone:   "9800000000",
		DeliveryAddress: "Jhamsikhel, Lalitpur",
		Items:           lines,
	}, false)
	require.NoError(t, err)
	return o
}

// Advance walks an order through the given statuses.
func (s *Stack) Advance(t testing.TB, id uint, to ...models.OrderStatus) *models.Order {
	t.Helper()
	var o *models.Order
	for _, st := range to {
		var err error
		o, err = s.Orders.UpdateStatus(context.Background(), id, st)
		require.NoError(t, err)
	}
	return o
}

func (s *Stack) Table(t testing.TB, id string) *models.Table {
	t.Helper()
	tb, err := s.Tables.GetTable(context.Background(), id)
	require.NoError(t, err)
	return tb
}
