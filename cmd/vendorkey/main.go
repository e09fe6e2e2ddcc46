// vendorkey stores a vendor API key in the database so the API and the
// worker can pick it up without a redeploy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"photorevive/internal/infra"
	"photorevive/internal/infra/credentials"
)

func main() {
	var (
		keyFlag    string
		vendorFlag string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected vendor (falls back to environment)")
	flag.StringVar(&vendorFlag, "vendor", credentials.VendorDashScope, "vendor to configure (dashscope or 302ai)")
	flag.Parse()

	vendor := strings.TrimSpace(strings.ToLower(vendorFlag))
	if vendor == "" {
		vendor = credentials.VendorDashScope
	}
	if !credentials.KnownVendor(vendor) {
		fmt.Fprintf(os.Stderr, "unsupported vendor %q\n", vendorFlag)
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		switch vendor {
		case credentials.Vendor302AI:
			key = strings.TrimSpace(os.Getenv("A302_API_KEY"))
		default:
			key = strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
		}
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or environment\n", vendor)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "vendorkey").Str("vendor", vendor).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()
	if err := store.SetAPIKey(ctxExec, vendor, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", vendor, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", vendor)
}
