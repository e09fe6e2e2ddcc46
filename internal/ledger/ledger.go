// Package ledger implements the append-only credit transaction log and its
// derived balance. All duplicate detection funnels through the reference_id
// idempotency key; callers never pre-check for existing transactions.
package ledger

import (
	"context"

	"photorevive/internal/domain"
)

// Ledger exposes the credit transaction protocol. ChargeIfSufficient is the
// only operation that can take the balance down and it never lets it go
// negative, even under concurrent charges for the same user.
type Ledger interface {
	// ChargeIfSufficient atomically checks balance >= amount and records a
	// USAGE debit. Returns the transaction id, or
	// domain.ErrInsufficientCredits without side effects. Re-charging an
	// already-used referenceID returns the original transaction id.
	ChargeIfSufficient(ctx context.Context, userID string, amount int64, referenceID string, metadata map[string]any) (string, error)

	// Credit appends a positive transaction. A repeated referenceID returns
	// the existing transaction with applied=false and leaves the balance
	// untouched.
	Credit(ctx context.Context, userID string, amount int64, typ domain.TransactionType, referenceID string, metadata map[string]any) (*domain.CreditTransaction, bool, error)

	// Balance returns the user's current balance.
	Balance(ctx context.Context, userID string) (int64, error)

	// Transactions returns the user's most recent ledger entries.
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}
