package models

import (
	"fmt"

	"github.com/Skotchmaster/restaurant_pos/internal/domain"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusCompleted, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown order status %q", domain.ErrValidation, s)
}

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine-in"
	OrderTypeDelivery OrderType = "delivery"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentOnline PaymentMethod = "online"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentCash, PaymentCard, PaymentOnline:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", domain.ErrValidation, s)
}

// LedgerType is the daybook row a payment of this method produces.
func (m PaymentMethod) LedgerType() TransactionType {
	switch m {
	case PaymentCard:
		return TxCardPayment
	case PaymentOnline:
		return TxOnlinePayment
	default:
		return TxCashPayment
	}
}

type TableStatus string

const (
	TableEmpty          TableStatus = "empty"
	TableOccupied       TableStatus = "occupied"
	TableOrdering       TableStatus = "ordering"
	TableDining         TableStatus = "dining"
	TablePaymentPending TableStatus = "payment_pending"
	TableCompleted      TableStatus = "completed"
)

type TransactionType string

const (
	TxOpeningBalance TransactionType = "opening_balance"
	TxClosingBalance TransactionType = "closing_balance"
	TxCashPayment    TransactionType = "cash_payment"
	TxCardPayment    TransactionType = "card_payment"
	TxOnlinePayment  TransactionType = "online_payment"
	TxExpense        TransactionType = "expense"
	TxCashHandover   TransactionType = "cash_handover"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch tt := TransactionType(s); tt {
	case TxOpeningBalance, TxClosingBalance, TxCashPayment, TxCardPayment, TxOnlinePayment, TxExpense, TxCashHandover:
		return tt, nil
	}
	return "", fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, s)
}
