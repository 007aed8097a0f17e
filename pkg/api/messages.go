package api

import "github.com/shopspring/decimal"

// Payment is a recorded payment as returned to readers.
type Payment struct {
	ExpenseID string          `json:"expense_id"`
	Payer     string          `json:"payer"`
	Member    string          `json:"member"`
	Amount    decimal.Decimal `json:"amount"`
	TxHash    string          `json:"tx_hash"`
	Timestamp uint64          `json:"timestamp"`
}

// RecordPaymentRequest submits a payment. The caller's token must be for Member.
type RecordPaymentRequest struct {
	TripID    string          `json:"trip_id"`
	ExpenseID string          `json:"expense_id"`
	Payer     string          `json:"payer"`
	Member    string          `json:"member"`
	Amount    decimal.Decimal `json:"amount"`
	TxHash    string          `json:"tx_hash"`
}

type RecordPaymentResponse struct{}

type GetPaymentsRequest struct {
	TripID string `json:"trip_id"`
}

type GetPaymentsResponse struct {
	Payments []Payment `json:"payments"`
}

type IsPaidRequest struct {
	ExpenseID string `json:"expense_id"`
	Member    string `json:"member"`
}

type IsPaidResponse struct {
	Paid bool `json:"paid"`
}

// WatchPaymentsRequest subscribes to payments of one trip, or of every trip
// when TripID is empty.
//
// Delivery is live: payments recorded while no stream is open are not queued.
// A reconnecting watcher can set Since to the timestamp of the last payment
// it saw; the trip's payments recorded at or after it are replayed before
// live events. Since requires TripID.
type WatchPaymentsRequest struct {
	TripID string `json:"trip_id"`
	Since  uint64 `json:"since,omitempty"`
}

// PaymentEvent is streamed to watchers after a payment is recorded.
// Replayed events come from the stored history and carry no EventID.
type PaymentEvent struct {
	EventID   string          `json:"event_id,omitempty"`
	TripID    string          `json:"trip_id"`
	ExpenseID string          `json:"expense_id"`
	Member    string          `json:"member"`
	Amount    decimal.Decimal `json:"amount"`
	Replayed  bool            `json:"replayed,omitempty"`
}
