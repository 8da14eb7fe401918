package order

import (
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
)

type Line struct {
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	IsCustom  bool         `json:"is_custom"`
}

type CreateRequest struct {
	Type            models.OrderType `json:"type"`
	TableID         string           `json:"table_id"`
	CustomerName    string           `json:"customer_name"`
	CustomerPhone   string           `json:"customer_phone"`
	DeliveryAddress string           `json:"delivery_address"`
	Items           []Line           `json:"items"`
	// Total sent by clients is ignored; the server recomputes it.
	Total money.Amount `json:"total"`
}

type Filter struct {
	TableID string
	Type    models.OrderType
}

// SettleFunc fills the payment fields of a locked, unpaid order or rejects it.
type SettleFunc func(o *models.Order) error
