package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   error
	}{
		{"1", nil},
		{"10000000", nil},
		{"170141183460469231731687303715884105727", nil},
		{"170141183460469231731687303715884105728", ErrInvalidAmount},
		{"0", ErrInvalidAmount},
		{"-1", ErrInvalidAmount},
		{"0.5", ErrInvalidAmount},
		{"2.000", nil},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount))
			assert.Equal(t, tt.want, err)
		})
	}
}

func TestValidateIDs(t *testing.T) {
	assert.NoError(t, ValidateIDs("trip", "exp"))
	assert.ErrorIs(t, ValidateIDs("", "exp"), ErrEmptyID)
	assert.ErrorIs(t, ValidateIDs("trip", ""), ErrEmptyID)
}

func TestSystemClockNeverGoesBackwards(t *testing.T) {
	var c SystemClock
	c.last.Store(1 << 62)

	assert.Equal(t, uint64(1<<62), c.Now())

	var fresh SystemClock
	first := fresh.Now()
	assert.GreaterOrEqual(t, fresh.Now(), first)
}
