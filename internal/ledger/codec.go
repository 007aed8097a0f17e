package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mmynk/settlex/internal/models"
)

// History values use protobuf wire format:
//
//	message History { repeated Record records = 1; }
//	message Record {
//	  string expense_id = 1;
//	  string payer      = 2;
//	  string member     = 3;
//	  string amount     = 4; // decimal integer
//	  string tx_hash    = 5;
//	  uint64 timestamp  = 6;
//	}
const (
	fieldHistoryRecord protowire.Number = 1

	fieldExpenseID protowire.Number = 1
	fieldPayer     protowire.Number = 2
	fieldMember    protowire.Number = 3
	fieldAmount    protowire.Number = 4
	fieldTxHash    protowire.Number = 5
	fieldTimestamp protowire.Number = 6
)

func encodeHistory(records []models.PaymentRecord) []byte {
	var b []byte
	for _, r := range records {
		b = protowire.AppendTag(b, fieldHistoryRecord, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeRecord(r))
	}
	return b
}

func encodeRecord(r models.PaymentRecord) []byte {
	var b []byte
	b = appendString(b, fieldExpenseID, r.ExpenseID)
	b = appendString(b, fieldPayer, r.Payer.String())
	b = appendString(b, fieldMember, r.Member.String())
	b = appendString(b, fieldAmount, r.Amount.String())
	b = appendString(b, fieldTxHash, r.TxHash)
	b = protowire.AppendTag(b, fieldTimestamp, protowire.VarintType)
	b = protowire.AppendVarint(b, r.Timestamp)
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func decodeHistory(b []byte) ([]models.PaymentRecord, error) {
	records := []models.PaymentRecord{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode history tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num != fieldHistoryRecord || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("failed to skip history field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}

		raw, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return nil, fmt.Errorf("failed to decode record: %w", protowire.ParseError(n))
		}
		b = b[n:]

		record, err := decodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %d: %w", len(records), err)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeRecord(b []byte) (models.PaymentRecord, error) {
	var r models.PaymentRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldTimestamp && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.Timestamp = v
			b = b[n:]
		case typ == protowire.BytesType && num >= fieldExpenseID && num <= fieldTxHash:
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
			if err := setStringField(&r, num, s); err != nil {
				return r, err
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}

func setStringField(r *models.PaymentRecord, num protowire.Number, s string) error {
	switch num {
	case fieldExpenseID:
		r.ExpenseID = s
	case fieldPayer:
		r.Payer = models.Principal(s)
	case fieldMember:
		r.Member = models.Principal(s)
	case fieldAmount:
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", s, err)
		}
		r.Amount = amount
	case fieldTxHash:
		r.TxHash = s
	}
	return nil
}
