package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

func TestDeriveStatus(t *testing.T) {
	o := func(st models.OrderStatus, ps models.PaymentStatus) models.Order {
		return models.Order{Status: st, PaymentStatus: ps}
	}
	unpaid, paid := models.PaymentUnpaid, models.PaymentPaid

	tests := []struct {
		name   string
		orders []models.Order
		want   models.TableStatus
	}{
		{"no orders", nil, models.TableEmpty},
		{"pending", []models.Order{o(models.OrderStatusPending, unpaid)}, models.TableOrdering},
		{"preparing beats ready", []models.Order{o(models.OrderStatusReady, unpaid), o(models.OrderStatusPreparing, unpaid)}, models.TableOrdering},
		{"ready", []models.Order{o(models.OrderStatusReady, unpaid), o(models.OrderStatusCompleted, paid)}, models.TableDining},
		{"completed unpaid", []models.Order{o(models.OrderStatusCompleted, unpaid), o(models.OrderStatusCompleted, paid)}, models.TablePaymentPending},
		{"all paid", []models.Order{o(models.OrderStatusCompleted, paid), o(models.OrderStatusCancelled, unpaid)}, models.TableCompleted},
		{"all cancelled", []models.Order{o(models.OrderStatusCancelled, unpaid)}, models.TableOccupied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DeriveStatus(tt.orders))
		})
	}
}

func TestApplyOp(t *testing.T) {
	lines, err := applyOp(nil, CartOp{Op: OpAdd, ItemID: "momo", Name: "Momo", UnitPrice: 18000})
	assert.NoError(t, err)
	assert.Equal(t, 1, lines[0].Quantity)

	lines, err = applyOp(lines, CartOp{Op: OpAdd, ItemID: "momo", Quantity: 2})
	assert.NoError(t, err)
	assert.Equal(t, 3, lines[0].Quantity)

	lines, err = applyOp(lines, CartOp{Op: OpSetQuantity, ItemID: "momo", Quantity: 0})
	assert.NoError(t, err)
	assert.Empty(t, lines)

	_, err = applyOp(lines, CartOp{Op: OpSetQuantity, ItemID: "tea", Quantity: 2})
	assert.Error(t, err)

	_, err = applyOp(nil, CartOp{Op: OpAdd, ItemID: "tea"})
	assert.Error(t, err, "a new line needs a name")
}
