package domain

import "time"

// TransactionType enumerates the business reason for a ledger entry.
type TransactionType string

const (
	TransactionBonus    TransactionType = "BONUS"
	TransactionPurchase TransactionType = "PURCHASE"
	TransactionUsage    TransactionType = "USAGE"
	TransactionRefund   TransactionType = "REFUND"
)

// CreditTransaction is a single immutable row in the append-only credit
// ledger. Amount is signed: positive entries credit the user, negative
// entries debit. ReferenceID is the idempotency key; at most one
// transaction exists per reference.
type CreditTransaction struct {
	ID          string
	UserID      string
	Amount      int64
	Type        TransactionType
	ReferenceID string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// FirstLoginBonusCredits is granted once per user, regardless of whether
// the account was created via email signup or OAuth.
const FirstLoginBonusCredits = 10

// FirstLoginBonusReference keys the signup bonus by user id alone so the
// email and OAuth paths collapse onto one transaction.
func FirstLoginBonusReference(userID string) string {
	return "bonus:first-login:" + userID
}
