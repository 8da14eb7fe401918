package session

import "github.com/Skotchmaster/restaurant_pos/internal/models"

// DeriveStatus computes a table's status from its non-archived orders. First match wins.
func DeriveStatus(active []models.Order) models.TableStatus {
	if len(active) == 0 {
		return models.TableEmpty
	}
	var ready, unpaidDone, paidDone bool
	for _, o := range active {
		switch o.Status {
		case models.OrderStatusPending, models.OrderStatusPreparing:
			return models.TableOrdering
		case models.OrderStatusReady:
			ready = true
		case models.OrderStatusCompleted:
			if o.PaymentStatus == models.PaymentPaid {
				paidDone = true
			} else {
				unpaidDone = true
			}
		}
	}
	switch {
	case ready:
		return models.TableDining
	case unpaidDone:
		return models.TablePaymentPending
	case paidDone:
		return models.TableCompleted
	default:
		return models.TableOccupied
	}
}
