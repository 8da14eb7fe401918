package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/restaurant_pos/internal/models"
)

type EventType string

const (
	NewOrder           EventType = "newOrder"
	OrderStatusUpdated EventType = "orderStatusUpdated"
	TableCleared       EventType = "tableCleared"
	PaymentCompleted   EventType = "paymentCompleted"
	TransactionCreated EventType = "transactionCreated"
	OrderDeleted       EventType = "orderDeleted"
)

// Event goes over the wire flat: {"type","entityId","version",...data}.
type Event struct {
	ID         string
	Type       EventType
	EntityID   string
	Version    int64
	OccurredAt time.Time
	Data       map[string]any
}

var reserved = map[string]struct{}{"id": {}, "type": {}, "entityId": {}, "version": {}, "occurredAt": {}}

func New(t EventType, entityID string, version int64, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		EntityID:   entityID,
		Version:    version,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Data)+5)
	for k, v := range e.Data {
		if _, ok := reserved[k]; ok {
			continue
		}
		out[k] = v
	}
	out["id"] = e.ID
	out["type"] = e.Type
	out["entityId"] = e.EntityID
	out["version"] = e.Version
	out["occurredAt"] = e.OccurredAt
	return json.Marshal(out)
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return err
	}
	var head struct {
		ID         string    `json:"id"`
		Type       EventType `json:"type"`
		EntityID   string    `json:"entityId"`
		Version    int64     `json:"version"`
		OccurredAt time.Time `json:"occurredAt"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return err
	}
	if head.Type == "" {
		return fmt.Errorf("event without type")
	}
	data := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := reserved[k]; ok {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		data[k] = val
	}
	*e = Event{ID: head.ID, Type: head.Type, EntityID: head.EntityID, Version: head.Version, OccurredAt: head.OccurredAt, Data: data}
	return nil
}

// Key identifies the entity an event versions: orders, tables and ledger rows have separate id spaces.
func (e Event) Key() string {
	switch e.Type {
	case TableCleared:
		return "table:" + e.EntityID
	case TransactionCreated:
		return "transaction:" + e.EntityID
	default:
		return "order:" + e.EntityID
	}
}

// String reads a data field as text; numbers decoded from JSON come back as float64.
func (e Event) String(key string) string {
	switch v := e.Data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func orderID(o *models.Order) string { return strconv.FormatUint(uint64(o.ID), 10) }

func orderData(o *models.Order) map[string]any {
	return map[string]any{
		"orderNumber":   o.OrderNumber,
		"orderType":     o.Type,
		"tableId":       o.Table(),
		"status":        o.Status,
		"paymentStatus": o.PaymentStatus,
		"total":         o.Total.String(),
		"archived":      o.IsArchived(),
	}
}

func NewOrderEvent(o *models.Order) Event {
	data := orderData(o)
	data["customerName"] = o.CustomerName
	return New(NewOrder, orderID(o), o.Version, data)
}

func StatusEvent(o *models.Order) Event {
	return New(OrderStatusUpdated, orderID(o), o.Version, orderData(o))
}

func PaymentEvent(o *models.Order) Event {
	data := orderData(o)
	data["paymentMethod"] = o.PaymentMethod
	if o.PaymentMethod == models.PaymentCash {
		data["changeGiven"] = o.ChangeGiven.String()
	}
	return New(PaymentCompleted, orderID(o), o.Version, data)
}

func DeletedEvent(o *models.Order) Event {
	return New(OrderDeleted, orderID(o), o.Version+1, map[string]any{
		"orderNumber": o.OrderNumber,
		"tableId":     o.Table(),
	})
}

func TableClearedEvent(t *models.Table, orderIDs []uint) Event {
	return New(TableCleared, t.ID, t.Version, map[string]any{
		"tableId":  t.ID,
		"status":   t.Status,
		"orderIds": orderIDs,
	})
}

func TransactionEvent(tx *models.DaybookTransaction) Event {
	data := map[string]any{
		"txType":       tx.Type,
		"amount":       tx.Amount.String(),
		"businessDate": tx.BusinessDate,
	}
	if tx.OrderID != nil {
		data["orderId"] = *tx.OrderID
	}
	return New(TransactionCreated, strconv.FormatUint(uint64(tx.ID), 10), 1, data)
}
