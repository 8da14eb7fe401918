package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
	"github.com/Skotchmaster/restaurant_pos/internal/testutil"
)

func TestBindTableValidatesRange(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	for _, raw := range []string{"0", "13", "abc", ""} {
		_, err := s.Tables.BindTable(ctx, raw, session.Customer{Name: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidTable, raw)
	}

	tb, err := s.Tables.BindTable(ctx, "05", session.Customer{Name: "Asha", Phone: "98"})
	require.NoError(t, err)
	assert.Equal(t, "5", tb.ID)
	assert.Equal(t, "Asha", tb.CustomerName)
	// binding alone does not make a table busy
	assert.Equal(t, models.TableEmpty, tb.Status)

	require.NoError(t, s.Settings.SetTableCount(ctx, 20))
	_, err = s.Tables.BindTable(ctx, "13", session.Customer{})
	assert.NoError(t, err)
}

func TestCartLifecycle(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	cart, err := s.Tables.GetCart(ctx, "3")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = s.Tables.MutateCart(ctx, "3", session.CartOp{Op: session.OpAdd, ItemID: "momo", Name: "Chicken Momo", UnitPrice: money.MustParse("180"), Quantity: 2})
	require.NoError(t, err)
	cart, err = s.Tables.MutateCart(ctx, "3", session.CartOp{Op: session.OpAdd, ItemID: "tea", Name: "Milk Tea", UnitPrice: money.MustParse("40")})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, money.MustParse("400"), cart.Total)

	cart, err = s.Tables.GetCart(ctx, "3")
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	_, err = s.Tables.MutateCart(ctx, "3", session.CartOp{Op: "explode", ItemID: "tea"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	s.Clock.Advance(59 * time.Minute)
	cart, err = s.Tables.GetCart(ctx, "3")
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2, "still inside the idle window")

	s.Clock.Advance(61 * time.Minute)
	cart, err = s.Tables.GetCart(ctx, "3")
	require.NoError(t, err)
	assert.Empty(t, cart.Items, "idle cart expires")

	var n int64
	require.NoError(t, s.DB.Model(&models.TableSession{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestClearTableArchivesEverything(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	o1 := s.DineIn(t, "5")
	o2 := s.DineIn(t, "5")
	s.Advance(t, o1.ID, models.OrderStatusPreparing, models.OrderStatusReady)
	s.Advance(t, o2.ID, models.OrderStatusPreparing, models.OrderStatusReady)
	assert.Equal(t, models.TableDining, s.Table(t, "5").Status)

	_, err := s.Tables.MutateCart(ctx, "5", session.CartOp{Op: session.OpAdd, ItemID: "tea", Name: "Milk Tea", UnitPrice: 4000})
	require.NoError(t, err)
	s.Events.Reset()

	res, err := s.Tables.ClearTable(ctx, "5")
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	require.Len(t, res.Orders, 2)
	for _, o := range res.Orders {
		assert.Equal(t, models.OrderStatusCompleted, o.Status)
		assert.NotNil(t, o.ArchivedAt)
	}
	assert.Equal(t, models.TableEmpty, res.Table.Status)
	assert.Empty(t, res.Table.CustomerName)
	require.NotNil(t, res.History)
	assert.Equal(t, 2, res.History.OrderCount)
	assert.Equal(t, money.MustParse("720"), res.History.Total)

	active, err := s.Orders.ListActive(ctx, orderFilter("5"))
	require.NoError(t, err)
	assert.Empty(t, active)

	cart, err := s.Tables.GetCart(ctx, "5")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	var cleared int
	for _, e := range s.Events.Events() {
		if e.Type == realtime.TableCleared {
			cleared++
			assert.Equal(t, "5", e.EntityID)
		}
	}
	assert.Equal(t, 1, cleared)
}

func TestClearTableRefusesKitchenOrders(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	ready := s.DineIn(t, "2")
	s.Advance(t, ready.ID, models.OrderStatusPreparing, models.OrderStatusReady)
	pending := s.DineIn(t, "2")
	s.Events.Reset()

	_, err := s.Tables.ClearTable(ctx, "2")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.Orders.Get(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusReady, got.Status)
	assert.Nil(t, got.ArchivedAt)

	got, err = s.Orders.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)

	assert.Equal(t, models.TableOrdering, s.Table(t, "2").Status)
	assert.Empty(t, s.Events.Events())

	var n int64
	require.NoError(t, s.DB.Model(&models.TableHistory{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestClearTableIsIdempotent(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	res, err := s.Tables.ClearTable(ctx, "7")
	require.NoError(t, err)
	assert.False(t, res.Cleared)

	o := s.DineIn(t, "7")
	s.Advance(t, o.ID, models.OrderStatusCancelled)
	assert.Equal(t, models.TableOccupied, s.Table(t, "7").Status)

	res, err = s.Tables.ClearTable(ctx, "7")
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	s.Events.Reset()

	res, err = s.Tables.ClearTable(ctx, "7")
	require.NoError(t, err)
	assert.False(t, res.Cleared)
	assert.Equal(t, models.TableEmpty, res.Table.Status)
	assert.Empty(t, s.Events.Events())
}

func TestListTablesCoversConfiguredCount(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	s.DineIn(t, "4")

	tables, err := s.Tables.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 12)
	assert.Equal(t, "1", tables[0].ID)
	assert.Equal(t, models.TableOrdering, tables[3].Status)
	assert.Equal(t, 1, tables[3].ActiveOrders)
	assert.Equal(t, models.TableEmpty, tables[11].Status)

	require.NoError(t, s.Settings.SetTableCount(ctx, 3))
	tables, err = s.Tables.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 4, "table 4 still holds an order")
	assert.Equal(t, "4", tables[3].ID)
}
