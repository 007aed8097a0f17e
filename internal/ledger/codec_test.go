package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mmynk/settlex/internal/models"
)

func TestHistoryCodec(t *testing.T) {
	records := []models.PaymentRecord{
		{
			ExpenseID: "exp-1",
			Payer:     "GPAYER",
			Member:    "GMEMBER",
			Amount:    decimal.RequireFromString("170141183460469231731687303715884105727"),
			TxHash:    "abc",
			Timestamp: 1_700_000_000,
		},
		{ExpenseID: "exp-2", Member: "GOTHER", Amount: decimal.NewFromInt(1)},
	}

	decoded, err := decodeHistory(encodeHistory(records))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, records[0].ExpenseID, decoded[0].ExpenseID)
	assert.Equal(t, records[0].Payer, decoded[0].Payer)
	assert.True(t, records[0].Amount.Equal(decoded[0].Amount))
	assert.Equal(t, records[0].Timestamp, decoded[0].Timestamp)
	assert.Equal(t, models.Principal(""), decoded[1].Payer)
}

func TestDecodeHistorySkipsUnknownFields(t *testing.T) {
	b := encodeHistory([]models.PaymentRecord{{ExpenseID: "exp-1", Amount: decimal.NewFromInt(5)}})
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 7)

	decoded, err := decodeHistory(b)
	require.NoError(t, err)
	assert.Len(t, decoded, 1)
}

func TestDecodeHistoryRejectsTruncatedInput(t *testing.T) {
	b := encodeHistory([]models.PaymentRecord{{ExpenseID: "exp-1", Amount: decimal.NewFromInt(5)}})

	_, err := decodeHistory(b[:len(b)-2])
	assert.Error(t, err)
}

func TestDecodeEmptyHistory(t *testing.T) {
	decoded, err := decodeHistory(nil)
	require.NoError(t, err)
	assert.NotNil(t, decoded)
	assert.Empty(t, decoded)
}
