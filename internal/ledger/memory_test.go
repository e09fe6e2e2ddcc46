package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"photorevive/internal/domain"
)

func seedBalance(t *testing.T, l Ledger, userID string, amount int64) {
	t.Helper()
	if _, applied, err := l.Credit(context.Background(), userID, amount, domain.TransactionBonus, "seed:"+userID, nil); err != nil || !applied {
		t.Fatalf("seed balance: applied=%v err=%v", applied, err)
	}
}

func TestCreditIdempotent(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	first, applied, err := l.Credit(ctx, "u1", 10, domain.TransactionBonus, "bonus:first-login:u1", nil)
	if err != nil || !applied {
		t.Fatalf("first credit: applied=%v err=%v", applied, err)
	}
	second, applied, err := l.Credit(ctx, "u1", 10, domain.TransactionBonus, "bonus:first-login:u1", nil)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if applied {
		t.Fatal("second credit with same reference must not apply")
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate credit returned a different transaction: %s vs %s", second.ID, first.ID)
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 10 {
		t.Fatalf("balance = %d, want 10", balance)
	}
}

func TestChargeInsufficient(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	seedBalance(t, l, "u1", 5)

	if _, err := l.ChargeIfSufficient(ctx, "u1", 6, "job-1", nil); !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 5 {
		t.Fatalf("failed charge must not move the balance, got %d", balance)
	}
	txs, _ := l.Transactions(ctx, "u1", 10)
	if len(txs) != 1 {
		t.Fatalf("failed charge must not record a transaction, got %d entries", len(txs))
	}
}

func TestChargeRetrySameReference(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	seedBalance(t, l, "u1", 20)

	first, err := l.ChargeIfSufficient(ctx, "u1", 6, "job-1", nil)
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	second, err := l.ChargeIfSufficient(ctx, "u1", 6, "job-1", nil)
	if err != nil {
		t.Fatalf("retried charge: %v", err)
	}
	if second != first {
		t.Fatalf("retried charge returned a new transaction: %s vs %s", second, first)
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 14 {
		t.Fatalf("balance = %d, want 14 after one effective charge", balance)
	}
}

func TestChargeThenRefundNetsZero(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	seedBalance(t, l, "u1", 10)

	if _, err := l.ChargeIfSufficient(ctx, "u1", 6, "job-1", nil); err != nil {
		t.Fatalf("charge: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := l.Credit(ctx, "u1", 6, domain.TransactionRefund, "job-1:refund", nil); err != nil {
			t.Fatalf("refund attempt %d: %v", i, err)
		}
	}
	balance, _ := l.Balance(ctx, "u1")
	if balance != 10 {
		t.Fatalf("balance = %d, want 10 after charge and idempotent refund", balance)
	}
}

func TestConcurrentChargesRespectFloor(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()

	const (
		balance = 100
		cost    = 6
		workers = 50
	)
	seedBalance(t, l, "u1", balance)

	var wg sync.WaitGroup
	succeeded := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id, err := l.ChargeIfSufficient(ctx, "u1", cost, fmt.Sprintf("job-%d", n), nil)
			if err == nil {
				succeeded <- id
			} else if !errors.Is(err, domain.ErrInsufficientCredits) {
				t.Errorf("unexpected charge error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	close(succeeded)

	var wins int
	for range succeeded {
		wins++
	}
	if want := balance / cost; wins != want {
		t.Fatalf("%d charges succeeded, want exactly %d", wins, want)
	}
	final, _ := l.Balance(ctx, "u1")
	if want := int64(balance % cost); final != want {
		t.Fatalf("final balance = %d, want %d", final, want)
	}
	if final < 0 {
		t.Fatal("balance went negative")
	}
}

func TestTransactionsMostRecentFirst(t *testing.T) {
	l := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, _, err := l.Credit(ctx, "u1", int64(i+1), domain.TransactionPurchase, fmt.Sprintf("purchase:%d", i), nil); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	txs, err := l.Transactions(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}
	if txs[0].Amount != 5 || txs[2].Amount != 3 {
		t.Fatalf("transactions not in reverse order: %v", txs)
	}
}
