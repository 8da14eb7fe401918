package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation")          // 400
	ErrInvalidTable       = errors.New("invalid table")       // 400
	ErrUnauthorized       = errors.New("unauthorized")        // 403
	ErrNotFound           = errors.New("not found")           // 404
	ErrInvalidTransition  = errors.New("invalid transition")  // 409
	ErrAlreadyPaid        = errors.New("already paid")        // 409
	ErrConflict           = errors.New("conflict")            // 409
	ErrNetworkUnavailable = errors.New("network unavailable") // client side
)

// ReconciliationWarning reports a payment that committed while its ledger row did not.
// The order is paid; the reconciler will append the row later.
type ReconciliationWarning struct {
	OrderID uint
	Err     error
}

func (w *ReconciliationWarning) Error() string {
	return fmt.Sprintf("order %d paid but ledger entry pending: %v", w.OrderID, w.Err)
}

func (w *ReconciliationWarning) Unwrap() error { return w.Err }

// Kind names the error class for API responses.
func Kind(err error) string {
	var warn *ReconciliationWarning
	switch {
	case errors.As(err, &warn):
		return "reconciliation_warning"
	case errors.Is(err, ErrInvalidTable):
		return "invalid_table"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrAlreadyPaid):
		return "already_paid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNetworkUnavailable):
		return "network_unavailable"
	default:
		return "internal"
	}
}

// FromKind maps an API error kind back to its sentinel.
func FromKind(kind string) error {
	switch kind {
	case "invalid_table":
		return ErrInvalidTable
	case "validation":
		return ErrValidation
	case "unauthorized":
		return ErrUnauthorized
	case "not_found":
		return ErrNotFound
	case "invalid_transition":
		return ErrInvalidTransition
	case "already_paid":
		return ErrAlreadyPaid
	case "conflict":
		return ErrConflict
	case "network_unavailable":
		return ErrNetworkUnavailable
	default:
		return nil
	}
}
