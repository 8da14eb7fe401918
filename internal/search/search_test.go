package search_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/search"
	"github.com/Skotchmaster/restaurant_pos/internal/testutil"
)

type memIndex struct {
	mu   sync.Mutex
	docs map[uint]models.Order
}

func (m *memIndex) IndexOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[o.ID] = *o
	return nil
}

func (m *memIndex) RemoveOrder(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *memIndex) Search(context.Context, string, int, int) (int64, []models.Order, error) {
	return 0, nil, nil
}

func TestSinkIndexesArchivedOrders(t *testing.T) {
	s := testutil.NewStack(t)
	idx := &memIndex{docs: map[uint]models.Order{}}
	sink := &search.Sink{Index: idx, DB: s.DB}
	ctx := context.Background()

	o := s.Delivery(t)
	s.Advance(t, o.ID, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted)
	live := s.DineIn(t, "3")

	for _, e := range s.Events.Events() {
		require.NoError(t, sink.Deliver(ctx, e))
	}
	require.Contains(t, idx.docs, o.ID)
	assert.Len(t, idx.docs[o.ID].Items, 1)
	assert.NotContains(t, idx.docs, live.ID, "active orders are not indexed")

	s.Events.Reset()
	_, err := s.Orders.DeleteOrder(ctx, o.ID, testutil.DeleteSecret)
	require.NoError(t, err)
	for _, e := range s.Events.Events() {
		require.NoError(t, sink.Deliver(ctx, e))
	}
	assert.Empty(t, idx.docs)
}

func TestDBIndexSearch(t *testing.T) {
	s := testutil.NewStack(t)
	ctx := context.Background()

	done := s.Delivery(t)
	s.Advance(t, done.ID, models.OrderStatusPreparing, models.OrderStatusReady, models.OrderStatusCompleted)
	s.Delivery(t)

	idx := &search.DBIndex{DB: s.DB}
	total, hits, err := idx.Search(ctx, "bikash", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total, "only archived orders are history")
	require.Len(t, hits, 1)
	assert.Equal(t, done.ID, hits[0].ID)

	total, _, err = idx.Search(ctx, done.OrderNumber, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	total, _, err = idx.Search(ctx, "nobody", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
