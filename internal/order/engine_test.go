package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
	"github.com/Skotchmaster/restaurant_pos/internal/testutil"
)

func TestCreateDineInOrder(t *testing.T) {
	s := testutil.NewStack(t)

	o, err := s.Orders.CreateOrder(context.Background(), order.CreateRequest{
		Type:         models.OrderTypeDineIn,
		TableID:      "5",
		CustomerName: "Asha",
		Items:        []order.Line{{ItemID: "momo", Name: "whatever", UnitPrice: money.MustParse("1.00"), Quantity: 2}},
		Total:        money.MustParse("2.00"),
	}, false)
	require.NoError(t, err)

	assert.Equal(t, money.MustParse("360.00"), o.Total, "server prices from the menu")
	assert.Equal(t, "Chicken Momo", o.Items[0].Name)
	assert.Equal(t, models.OrderStatusPending, o.Status)
	assert.Equal(t, models.PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, "ORD-20250310-0001", o.OrderNumber)
	assert.Equal(t, int64(1), o.Version)

	tb := s.Table(t, "5")
	assert.Equal(t, models.TableOrdering, tb.Status)
	assert.Equal(t, "Asha", tb.CustomerName)

	assert.Equal(t, []realtime.EventType{realtime.NewOrder}, s.Events.Types())

	o2 := s.DineIn(t, "6")
	assert.Equal(t, "ORD-20250310-0002", o2.OrderNumber)
}

func TestOrderNumbersRestartPerBusinessDay(t *testing.T) {
	s := testutil.NewStack(t)
	s.DineIn(t, "1")
	// 18:20 UTC is already the next day in Kathmandu
	s.Clock.Advance(12*time.Hour + 20*time.Minute)
	o := s.DineIn(t, "1")
	assert.Equal(t, "ORD-20250311-0001", o.OrderNumber)
}

func TestCreateOrderValidation(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	momo := []order.Line{{ItemID: "momo", Quantity: 1}}

	tests := []struct {
		name    string
		req     order.CreateRequest
		staff   bool
		wantErr error
	}{
		{"no items", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a"}, false, domain.ErrValidation},
		{"no name", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", Items: momo}, false, domain.ErrValidation},
		{"bad type", order.CreateRequest{Type: "takeaway", CustomerName: "a", Items: momo}, false, domain.ErrValidation},
		{"table out of range", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "99", CustomerName: "a", Items: momo}, false, domain.ErrInvalidTable},
		{"dine-in without table", order.CreateRequest{Type: models.OrderTypeDineIn, CustomerName: "a", Items: momo}, false, domain.ErrInvalidTable},
		{"delivery without address", order.CreateRequest{Type: models.OrderTypeDelivery, CustomerName: "a", CustomerPhone: "1", Items: momo}, false, domain.ErrValidation},
		{"delivery with table", order.CreateRequest{Type: models.OrderTypeDelivery, TableID: "1", CustomerName: "a", CustomerPhone: "1", DeliveryAddress: "x", Items: momo}, false, domain.ErrValidation},
		{"zero quantity", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{ItemID: "momo"}}}, false, domain.ErrValidation},
		{"too many", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{ItemID: "momo", Quantity: 100}}}, false, domain.ErrValidation},
		{"unknown item", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{ItemID: "pizza", Quantity: 1}}}, false, domain.ErrValidation},
		{"unavailable item", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{ItemID: "special", Quantity: 1}}}, false, domain.ErrValidation},
		{"custom from customer", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{IsCustom: true, Name: "x", UnitPrice: 100, Quantity: 1}}}, false, domain.ErrUnauthorized},
		{"custom without price", order.CreateRequest{Type: models.OrderTypeDineIn, TableID: "1", CustomerName: "a", Items: []order.Line{{IsCustom: true, Name: "x", Quantity: 1}}}, true, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Orders.CreateOrder(ctx, tt.req, tt.staff)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	var n int64
	require.NoError(t, s.DB.Model(&models.Order{}).Count(&n).Error)
	assert.Zero(t, n)
	assert.Empty(t, s.Events.Events())
}

func TestStaffCustomLine(t *testing.T) {
	s := testutil.NewStack(t)
	o, err := s.Orders.CreateOrder(context.Background(), order.CreateRequest{
		Type:         models.OrderTypeDineIn,
		TableID:      "2",
		CustomerName: "Walk-in",
		Items: []order.Line{
			{ItemID: "tea", Quantity: 2},
			{IsCustom: true, Name: "Extra achar", UnitPrice: money.MustParse("25.50"), Quantity: 1},
		},
	}, true)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("105.50"), o.Total)
	assert.True(t, o.Items[1].IsCustom)
}

func TestUpdateStatusRules(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	o := s.DineIn(t, "5")

	_, err := s.Orders.UpdateStatus(ctx, o.ID, models.OrderStatusReady)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot skip preparing")
	got, err := s.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	ready := s.Advance(t, o.ID, models.OrderStatusPreparing, models.OrderStatusReady)
	assert.Equal(t, int64(3), ready.Version)
	assert.Equal(t, models.TableDining, s.Table(t, "5").Status)

	_, err = s.Orders.UpdateStatus(ctx, o.ID, models.OrderStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "dine-in completes through payment or clear")

	_, err = s.Orders.UpdateStatus(ctx, o.ID, models.OrderStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = s.Orders.UpdateStatus(ctx, 4242, models.OrderStatusPreparing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeliveryCompletionArchives(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	o := s.Delivery(t)
	assert.Nil(t, o.TableID)

	done := s.Advance(t, o.ID, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted)
	assert.NotNil(t, done.ArchivedAt)
	assert.NotNil(t, done.CompletedAt)

	active, err := s.Orders.ListActive(ctx, order.Filter{})
	require.NoError(t, err)
	assert.Empty(t, active)

	history, err := s.Orders.ListHistory(ctx, "2025-03-10", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, o.ID, history[0].ID)

	_, err = s.Orders.UpdateStatus(ctx, o.ID, models.OrderStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListActiveFilters(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	a := s.DineIn(t, "1")
	s.DineIn(t, "2")
	s.Delivery(t)

	all, err := s.Orders.ListActive(ctx, order.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, a.ID, all[0].ID, "oldest first")

	byTable, err := s.Orders.ListActive(ctx, order.Filter{TableID: "1"})
	require.NoError(t, err)
	require.Len(t, byTable, 1)

	byType, err := s.Orders.ListActive(ctx, order.Filter{Type: models.OrderTypeDelivery})
	require.NoError(t, err)
	require.Len(t, byType, 1)
}

func TestDeleteOrder(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()
	o := s.Delivery(t)

	_, err := s.Orders.DeleteOrder(ctx, o.ID, "wrong")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = s.Orders.DeleteOrder(ctx, o.ID, testutil.DeleteSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "active orders cannot be deleted")

	s.Advance(t, o.ID, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted)
	s.Events.Reset()

	_, err = s.Orders.DeleteOrder(ctx, o.ID, testutil.DeleteSecret)
	require.NoError(t, err)
	_, err = s.Orders.Get(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var items int64
	require.NoError(t, s.DB.Model(&models.OrderItem{}).Where("order_id = ?", o.ID).Count(&items).Error)
	assert.Zero(t, items)
	assert.Equal(t, []realtime.EventType{realtime.OrderDeleted}, s.Events.Types())
}
