package ledger

import (
	"errors"

	"github.com/mmynk/settlex/internal/storage"
)

var (
	ErrInvalidAmount = errors.New("amount must be a positive integer")
	ErrAlreadyPaid   = errors.New("member already paid this expense")
	ErrEmptyID       = errors.New("trip_id and expense_id must not be empty")
	ErrUnauthorized  = errors.New("member did not authorize this payment")
)

// Error kinds reported to callers alongside RPC errors and metrics.
const (
	KindInvalidAmount = "invalid_amount"
	KindAlreadyPaid   = "already_paid"
	KindEmptyID       = "empty_id"
	KindUnauthorized  = "unauthorized"

	// KindConflict marks a write that lost a race with concurrent writers
	// and may be retried as is.
	KindConflict = "conflict"
)

// Kind classifies err as one of the ledger's error kinds, or "" for
// infrastructure failures.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidAmount):
		return KindInvalidAmount
	case errors.Is(err, ErrEmptyID):
		return KindEmptyID
	case errors.Is(err, ErrAlreadyPaid):
		return KindAlreadyPaid
	case errors.Is(err, storage.ErrTxConflict):
		return KindConflict
	default:
		return ""
	}
}
