// grantcredits applies a manual credit grant to a user account, typically
// for support refunds outside the automatic compensation path. The
// reference makes reruns of the same grant harmless.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"photorevive/internal/domain"
	"photorevive/internal/infra"
	"photorevive/internal/ledger"
)

func main() {
	var (
		userFlag      string
		amountFlag    int64
		referenceFlag string
		reasonFlag    string
	)
	flag.StringVar(&userFlag, "user", "", "user ID to credit (UUID)")
	flag.Int64Var(&amountFlag, "amount", 0, "credits to grant (must be positive)")
	flag.StringVar(&referenceFlag, "reference", "", "idempotency reference (defaults to a fresh grant:<uuid>)")
	flag.StringVar(&reasonFlag, "reason", "", "reason recorded in the transaction metadata")
	flag.Parse()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	if amountFlag <= 0 {
		exitWithError(fmt.Errorf("-amount must be positive, got %d", amountFlag))
	}
	reference := strings.TrimSpace(referenceFlag)
	if reference == "" {
		reference = "grant:" + uuid.NewString()
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "grantcredits").Logger()
	creditLedger := ledger.NewPG(infra.NewSQLRunner(pool, logger))

	meta := map[string]any{"granted_by": "cli"}
	if reason := strings.TrimSpace(reasonFlag); reason != "" {
		meta["reason"] = reason
	}

	execCtx, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	tx, applied, err := creditLedger.Credit(execCtx, userID, amountFlag, domain.TransactionBonus, reference, meta)
	if err != nil {
		exitWithError(fmt.Errorf("failed to grant credits: %w", err))
	}

	if applied {
		fmt.Printf("Granted %d credits to %s (transaction %s, reference %s)\n", amountFlag, userID, tx.ID, reference)
	} else {
		fmt.Printf("Reference %s was already applied as transaction %s, nothing changed\n", reference, tx.ID)
	}

	balance, err := creditLedger.Balance(execCtx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to read balance: %w", err))
	}
	fmt.Printf("balance=%d\n", balance)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
