package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"photorevive/internal/domain"
)

// Memory is a mutex-guarded in-process ledger with the same idempotency and
// floor-check semantics as PG. It backs tests and DB-less development runs.
type Memory struct {
	mu          sync.Mutex
	balances    map[string]int64
	byReference map[string]*domain.CreditTransaction
	byUser      map[string][]*domain.CreditTransaction
}

func NewMemory() *Memory {
	return &Memory{
		balances:    make(map[string]int64),
		byReference: make(map[string]*domain.CreditTransaction),
		byUser:      make(map[string][]*domain.CreditTransaction),
	}
}

func (m *Memory) ChargeIfSufficient(ctx context.Context, userID string, amount int64, referenceID string, metadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byReference[referenceID]; ok {
		return existing.ID, nil
	}
	if m.balances[userID] < amount {
		return "", domain.ErrInsufficientCredits
	}
	tx := &domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      -amount,
		Type:        domain.TransactionUsage,
		ReferenceID: referenceID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	m.balances[userID] -= amount
	m.record(tx)
	return tx.ID, nil
}

func (m *Memory) Credit(ctx context.Context, userID string, amount int64, typ domain.TransactionType, referenceID string, metadata map[string]any) (*domain.CreditTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byReference[referenceID]; ok {
		return existing, false, nil
	}
	tx := &domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Type:        typ,
		ReferenceID: referenceID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
	m.balances[userID] += amount
	m.record(tx)
	return tx, true, nil
}

func (m *Memory) Balance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *Memory) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := m.byUser[userID]
	if limit <= 0 || limit > len(txs) {
		limit = len(txs)
	}
	out := make([]domain.CreditTransaction, 0, limit)
	// Most recent first, matching the pg query.
	for i := len(txs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *txs[i])
	}
	return out, nil
}

func (m *Memory) record(tx *domain.CreditTransaction) {
	m.byReference[tx.ReferenceID] = tx
	m.byUser[tx.UserID] = append(m.byUser[tx.UserID], tx)
}

var _ Ledger = (*Memory)(nil)
