package orderclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/Skotchmaster/restaurant_pos/internal/daybook"
	"github.com/Skotchmaster/restaurant_pos/internal/models"
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/order"
	"github.com/Skotchmaster/restaurant_pos/internal/payment"
	"github.com/Skotchmaster/restaurant_pos/internal/session"
)

type (
	Cart               = session.Cart
	CartOp             = session.CartOp
	ClearResult        = session.ClearResult
	CreateOrderRequest = order.CreateRequest
	PaymentRequest     = payment.Request
)

type PaymentResult struct {
	Order       *models.Order              `json:"order"`
	Transaction *models.DaybookTransaction `json:"transaction,omitempty"`
	ChangeGiven money.Amount               `json:"change_given"`
	Warning     string                     `json:"warning,omitempty"`
}

// Action is a serialised mutating request. Key travels as the Idempotency-Key header
// and stays the same across retries.
type Action struct {
	Key    string            `json:"key"`
	Method string            `json:"method"`
	Path   string            `json:"path"`
	Body   json.RawMessage   `json:"body,omitempty"`
	Header map[string]string `json:"header,omitempty"`
}

func newAction(method, path string, body any) (Action, error) {
	a := Action{Key: uuid.NewString(), Method: method, Path: path}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return Action{}, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		a.Body = raw
	}
	return a, nil
}

func BindTableAction(table string, c session.Customer) (Action, error) {
	return newAction(http.MethodPost, "/tables/"+url.PathEscape(table)+"/bind", c)
}

func MutateCartAction(table string, op CartOp) (Action, error) {
	return newAction(http.MethodPost, "/tables/"+url.PathEscape(table)+"/cart", op)
}

func ClearTableAction(table string) (Action, error) {
	return newAction(http.MethodPost, "/tables/"+url.PathEscape(table)+"/clear", nil)
}

func CreateOrderAction(req CreateOrderRequest) (Action, error) {
	return newAction(http.MethodPost, "/orders", req)
}

func UpdateStatusAction(id uint, status models.OrderStatus) (Action, error) {
	return newAction(http.MethodPatch, "/orders/"+itoa(id)+"/status", map[string]models.OrderStatus{"status": status})
}

func CompletePaymentAction(id uint, req PaymentRequest) (Action, error) {
	return newAction(http.MethodPost, "/orders/"+itoa(id)+"/payment", req)
}

func AppendTransactionAction(in daybook.AppendInput) (Action, error) {
	return newAction(http.MethodPost, "/daybook/transactions", in)
}

func SetTableCountAction(n int) (Action, error) {
	return newAction(http.MethodPut, "/settings/table-count", map[string]int{"table_count": n})
}
