package storage

import (
	"net/url"

	"github.com/mmynk/settlex/internal/models"
)

// KeyKind identifies one of the two logical key families.
type KeyKind uint8

const (
	// KindTripPayments is the payment history of one trip.
	KindTripPayments KeyKind = iota + 1
	// KindExpensePaid is the paid marker of one (expense, member) pair.
	KindExpensePaid
)

func (k KeyKind) String() string {
	switch k {
	case KindTripPayments:
		return "trip_payments"
	case KindExpensePaid:
		return "expense_paid"
	default:
		return "unknown"
	}
}

// Key addresses one storage slot.
type Key struct {
	Kind      KeyKind
	TripID    string
	ExpenseID string
	Member    models.Principal
}

// TripPayments returns the key of a trip's payment history.
func TripPayments(tripID string) Key {
	return Key{Kind: KindTripPayments, TripID: tripID}
}

// ExpensePaid returns the key of the paid marker for (expenseID, member).
func ExpensePaid(expenseID string, member models.Principal) Key {
	return Key{Kind: KindExpensePaid, ExpenseID: expenseID, Member: member}
}

// String returns the physical encoding of the key. Components are
// path-escaped so no two distinct keys share an encoding.
func (k Key) String() string {
	switch k.Kind {
	case KindTripPayments:
		return k.Kind.String() + "/" + url.PathEscape(k.TripID)
	case KindExpensePaid:
		return k.Kind.String() + "/" + url.PathEscape(k.ExpenseID) + "/" + url.PathEscape(k.Member.String())
	default:
		return "unknown/"
	}
}
