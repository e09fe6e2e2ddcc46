package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"photorevive/internal/domain"
	"photorevive/internal/infra"
	"photorevive/internal/sqlinline"
)

// PG is the PostgreSQL ledger. Each operation is a single SQL statement so
// the floor check and the transaction insert cannot race: two concurrent
// charges against one balance serialize on the user_credits row update.
type PG struct {
	sql infra.SQLExecutor
}

func NewPG(sql infra.SQLExecutor) *PG {
	return &PG{sql: sql}
}

func (l *PG) ChargeIfSufficient(ctx context.Context, userID string, amount int64, referenceID string, metadata map[string]any) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("ledger: charge amount must be positive, got %d", amount)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("ledger: encode metadata: %w", err)
	}
	txID := uuid.NewString()
	row := l.sql.QueryRow(ctx, sqlinline.QChargeIfSufficient, userID, amount, referenceID, txID, meta)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrInsufficientCredits
		}
		if infra.IsUniqueViolation(err) {
			// A retried charge for the same reference: the statement aborted
			// before touching the balance, so hand back the original.
			existing, lookupErr := l.transactionByReference(ctx, referenceID)
			if lookupErr != nil {
				return "", lookupErr
			}
			return existing.ID, nil
		}
		return "", fmt.Errorf("ledger: charge: %w", err)
	}
	return id, nil
}

func (l *PG) Credit(ctx context.Context, userID string, amount int64, typ domain.TransactionType, referenceID string, metadata map[string]any) (*domain.CreditTransaction, bool, error) {
	if amount <= 0 {
		return nil, false, fmt.Errorf("ledger: credit amount must be positive, got %d", amount)
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, false, fmt.Errorf("ledger: encode metadata: %w", err)
	}
	txID := uuid.NewString()
	row := l.sql.QueryRow(ctx, sqlinline.QCreditIdempotent, userID, amount, string(typ), txID, referenceID, meta)
	var id string
	if err := row.Scan(&id); err != nil {
		if !infra.IsNoRows(err) {
			return nil, false, fmt.Errorf("ledger: credit: %w", err)
		}
		// Duplicate reference. The follow-up select runs on a fresh
		// snapshot, so it sees the winner even when the two credits raced.
		existing, err := l.transactionByReference(ctx, referenceID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return &domain.CreditTransaction{
		ID:          id,
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		ReferenceID: referenceID,
		Metadata:    metadata,
	}, true, nil
}

func (l *PG) Balance(ctx context.Context, userID string) (int64, error) {
	row := l.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID)
	var balance int64
	if err := row.Scan(&balance); err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

func (l *PG) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.sql.Query(ctx, sqlinline.QListTransactions, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list transactions: %w", err)
	}
	defer rows.Close()
	var txs []domain.CreditTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, rows.Err()
}

func (l *PG) transactionByReference(ctx context.Context, referenceID string) (*domain.CreditTransaction, error) {
	return scanTransaction(l.sql.QueryRow(ctx, sqlinline.QSelectTransactionByReference, referenceID))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*domain.CreditTransaction, error) {
	var tx domain.CreditTransaction
	var metaRaw []byte
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Type, &tx.ReferenceID, &metaRaw, &tx.CreatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("ledger: scan transaction: %w", err)
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("ledger: decode metadata: %w", err)
		}
	}
	return &tx, nil
}

var _ Ledger = (*PG)(nil)
