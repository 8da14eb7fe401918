package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/Skotchmaster/restaurant_pos/internal/money"
)

type Table struct {
	ID            string      `gorm:"primaryKey;size:16"   json:"id"`
	Status        TableStatus `gorm:"size:24;not null"     json:"status"`
	CustomerName  string      `gorm:"size:100"             json:"customer_name,omitempty"`
	CustomerPhone string      `gorm:"size:32"              json:"customer_phone,omitempty"`
	SessionStart  *time.Time  `                            json:"session_start,omitempty"`
	Version       int64       `gorm:"not null"             json:"version"`
	UpdatedAt     time.Time   `                            json:"updated_at"`

	ActiveOrders int `gorm:"-" json:"active_orders"`
}

// CartLine prices are advisory; orders are repriced on submission.
type CartLine struct {
	ItemID    string       `json:"item_id"`
	Name      string       `json:"name"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	IsCustom  bool         `json:"is_custom,omitempty"`
}

type TableSession struct {
	TableID     string                        `gorm:"primaryKey;size:16"  json:"table_id"`
	Items       datatypes.JSONSlice[CartLine] `gorm:"not null"            json:"items"`
	LastWriteAt time.Time                     `gorm:"not null"            json:"last_write_at"`
}

type Order struct {
	ID              uint          `gorm:"primaryKey"                json:"id"`
	OrderNumber     string        `gorm:"uniqueIndex;size:32"       json:"order_number"`
	Type            OrderType     `gorm:"size:16;not null"          json:"type"`
	TableID         *string       `gorm:"index;size:16"             json:"table_id,omitempty"`
	CustomerName    string        `gorm:"size:100;not null"         json:"customer_name"`
	CustomerPhone   string        `gorm:"size:32"                   json:"customer_phone,omitempty"`
	DeliveryAddress string        `gorm:"size:255"                  json:"delivery_address,omitempty"`
	Status          OrderStatus   `gorm:"size:16;index;not null"    json:"status"`
	Total           money.Amount  `gorm:"not null"                  json:"total"`
	PaymentStatus   PaymentStatus `gorm:"size:16;index;not null"    json:"payment_status"`
	PaymentMethod   PaymentMethod `gorm:"size:16"                   json:"payment_method,omitempty"`
	AmountReceived  money.Amount  `                                 json:"amount_received,omitempty"`
	ChangeGiven     money.Amount  `                                 json:"change_given,omitempty"`
	ReferenceNumber string        `gorm:"size:64"                   json:"reference_number,omitempty"`
	Ledgered        bool          `gorm:"not null"                  json:"ledgered"`
	Version         int64         `gorm:"not null"                  json:"version"`
	Items           []OrderItem   `gorm:"constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt       time.Time     `                                 json:"created_at"`
	UpdatedAt       time.Time     `                                 json:"updated_at"`
	PaidAt          *time.Time    `                                 json:"paid_at,omitempty"`
	CompletedAt     *time.Time    `                                 json:"completed_at,omitempty"`
	ArchivedAt      *time.Time    `gorm:"index"                     json:"archived_at,omitempty"`
}

func (o *Order) IsArchived() bool { return o.ArchivedAt != nil }

func (o *Order) Table() string {
	if o.TableID == nil {
		return ""
	}
	return *o.TableID
}

// OrderItem is an immutable snapshot of a line at the time the order was placed.
type OrderItem struct {
	ID        uint         `gorm:"primaryKey"          json:"id"`
	OrderID   uint         `gorm:"index;not null"      json:"order_id"`
	ItemID    string       `gorm:"size:64"             json:"item_id,omitempty"`
	Name      string       `gorm:"size:100;not null"   json:"name"`
	UnitPrice money.Amount `gorm:"not null"            json:"unit_price"`
	Quantity  int          `gorm:"not null"            json:"quantity"`
	IsCustom  bool         `gorm:"not null"            json:"is_custom"`
	LineTotal money.Amount `gorm:"not null"            json:"line_total"`
}

type MenuItem struct {
	ID        string       `gorm:"primaryKey;size:64"  json:"id"`
	Name      string       `gorm:"size:100;not null"   json:"name"`
	Price     money.Amount `gorm:"not null"            json:"price"`
	Available bool         `gorm:"not null"            json:"available"`
}

type DaybookTransaction struct {
	ID           uint            `gorm:"primaryKey"             json:"id"`
	Type         TransactionType `gorm:"size:24;index;not null" json:"type"`
	Amount       money.Amount    `gorm:"not null"               json:"amount"`
	Description  string          `gorm:"size:255"               json:"description"`
	OrderID      *uint           `gorm:"uniqueIndex"            json:"order_id,omitempty"`
	BusinessDate string          `gorm:"size:10;index;not null" json:"business_date"`
	CreatedAt    time.Time       `gorm:"index"                  json:"created_at"`

	Orphaned bool `gorm:"-" json:"orphaned,omitempty"`
}

type TableHistory struct {
	ID            uint                      `gorm:"primaryKey"      json:"id"`
	TableID       string                    `gorm:"index;size:16"   json:"table_id"`
	CustomerName  string                    `gorm:"size:100"        json:"customer_name,omitempty"`
	CustomerPhone string                    `gorm:"size:32"         json:"customer_phone,omitempty"`
	SessionStart  *time.Time                `                       json:"session_start,omitempty"`
	ClearedAt     time.Time                 `gorm:"not null"        json:"cleared_at"`
	OrderIDs      datatypes.JSONSlice[uint] `gorm:"not null"        json:"order_ids"`
	OrderCount    int                       `gorm:"not null"        json:"order_count"`
	Total         money.Amount              `gorm:"not null"        json:"total"`
}

func (TableHistory) TableName() string { return "table_history" }

type Setting struct {
	Key   string `gorm:"primaryKey;size:64"  json:"key"`
	Value string `gorm:"size:255;not null"   json:"value"`
}

type IdempotencyKey struct {
	Key       string    `gorm:"primaryKey;size:64"  json:"key"`
	Method    string    `gorm:"size:8;not null"     json:"method"`
	Path      string    `gorm:"size:255;not null"   json:"path"`
	Principal string    `gorm:"size:128;not null"   json:"principal"`
	BodyHash  string    `gorm:"size:64;not null"    json:"body_hash"`
	Status    int       `gorm:"not null"            json:"status"`
	Body      string    `gorm:"type:text"           json:"body"`
	CreatedAt time.Time `gorm:"index"               json:"created_at"`
}

// Snapshot is the full state a client loads on connect or after a missed event.
type Snapshot struct {
	Tables        []Table   `json:"tables"`
	ActiveOrders  []Order   `json:"active_orders"`
	TableCount    int       `json:"table_count"`
	GeneratedAt   time.Time `json:"generated_at"`
	Authoritative bool      `json:"authoritative"`
}

func All() []any {
	return []any{
		&Table{},
		&TableSession{},
		&Order{},
		&OrderItem{},
		&MenuItem{},
		&DaybookTransaction{},
		&TableHistory{},
		&Setting{},
		&IdempotencyKey{},
	}
}
