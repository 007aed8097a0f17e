package ledger

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// maxAmount is the largest value of a signed 128-bit integer.
var maxAmount = decimal.NewFromBigInt(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1)), 0)

// ValidateAmount rejects amounts that are not strictly positive integers
// representable in 128 bits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() || amount.GreaterThan(maxAmount) {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateIDs rejects empty trip or expense identifiers.
func ValidateIDs(tripID, expenseID string) error {
	if tripID == "" || expenseID == "" {
		return ErrEmptyID
	}
	return nil
}
