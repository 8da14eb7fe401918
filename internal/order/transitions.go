package order

import "github.com/Skotchmaster/restaurant_pos/internal/models"

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:   {models.OrderStatusPreparing, models.OrderStatusCancelled},
	models.OrderStatusPreparing: {models.OrderStatusReady, models.OrderStatusCancelled},
	models.OrderStatusReady:     {models.OrderStatusCompleted},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func isPayable(s models.OrderStatus) bool {
	return s == models.OrderStatusReady || s == models.OrderStatusCompleted
}

func inKitchen(s models.OrderStatus) bool {
	return s == models.OrderStatusPending || s == models.OrderStatusPreparing
}
