package daybook_test

import (
	"github.com/Skotchmaster/restaurant_pos/internal/money"
	"github.com/Skotchmaster/restaurant_pos/internal/payment"
)

func paymentCash(received money.Amount) payment.Request {
	return payment.Request{Method: "cash", AmountReceived: &received}
}
