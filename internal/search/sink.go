package search

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/realtime"
)

// Sink keeps the index in step with the event stream: archived orders are indexed,
// deleted ones removed.
type Sink struct {
	Index Index
	DB    *gorm.DB
}

func (s *Sink) Name() string { return "search" }

func (s *Sink) Deliver(ctx context.Context, e realtime.Event) error {
	id, err := strconv.ParseUint(e.EntityID, 10, 64)
	if err != nil {
		return nil
	}
	switch e.Type {
	case realtime.OrderDeleted:
		return s.Index.RemoveOrder(ctx, uint(id))
	case realtime.OrderStatusUpdated, realtime.PaymentCompleted:
		if archived, _ := e.Data["archived"].(bool); !archived {
			return nil
		}
		var o models.Order
		if err := s.DB.WithContext(ctx).Preload("Items").Where("id = ?", id).Take(&o).Error; err != nil {
			return err
		}
		return s.Index.IndexOrder(ctx, &o)
	}
	return nil
}
