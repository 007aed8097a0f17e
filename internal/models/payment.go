package models

import "github.com/shopspring/decimal"

// PaymentRecord is a single payment toward an expense within a trip.
// Records are immutable once stored.
type PaymentRecord struct {
	// ExpenseID identifies the expense being paid. Never empty.
	ExpenseID string `json:"expense_id"`

	// Payer is who performed the payment. It is recorded as supplied by the
	// member and is not independently authenticated.
	Payer Principal `json:"payer"`

	// Member is whose obligation this payment discharges. The member must
	// authorize the recording call.
	Member Principal `json:"member"`

	// Amount is a strictly positive integer in the smallest unit of the
	// trip's currency. It fits in a signed 128-bit integer.
	Amount decimal.Decimal `json:"amount"`

	// TxHash references an external settlement transaction.
	// Its format is not validated.
	TxHash string `json:"tx_hash"`

	// Timestamp is the host time (Unix seconds) when the record was stored.
	Timestamp uint64 `json:"timestamp"`
}

// PaymentSubmission holds the caller-supplied fields of a payment.
type PaymentSubmission struct {
	TripID    string
	ExpenseID string
	Payer     Principal
	Member    Principal
	Amount    decimal.Decimal
	TxHash    string
}

// PaymentRecorded is the notification emitted after a payment is stored.
type PaymentRecorded struct {
	TripID    string          `json:"trip_id"`
	ExpenseID string          `json:"expense_id"`
	Member    Principal       `json:"member"`
	Amount    decimal.Decimal `json:"amount"`
}
