package ledger

import (
	"context"
	"fmt"

	"github.com/mmynk/settlex/internal/models"
	"github.com/mmynk/settlex/internal/storage"
)

// paidMarker is the value stored in an ExpensePaid slot. Only its presence
// matters.
var paidMarker = []byte{1}

// claimPayment atomically sets the paid marker for (expenseID, member) inside
// tx, failing with ErrAlreadyPaid if it is already set. Rolling back tx
// releases the claim.
func claimPayment(ctx context.Context, tx storage.Tx, expenseID string, member models.Principal) error {
	claimed, err := tx.InsertIfAbsent(ctx, storage.ExpensePaid(expenseID, member), paidMarker)
	if err != nil {
		return fmt.Errorf("failed to check paid marker: %w", err)
	}
	if !claimed {
		return ErrAlreadyPaid
	}
	return nil
}
