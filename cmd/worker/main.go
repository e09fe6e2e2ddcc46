package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
	"photorevive/internal/infra"
	"photorevive/internal/infra/credentials"
	"photorevive/internal/ledger"
	"photorevive/internal/notifier"
	"photorevive/internal/orchestrator"
	"photorevive/internal/storage"
	"photorevive/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := store.NewJobStore(runner)
	creditLedger := ledger.NewPG(runner)

	objects, err := buildObjectStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	mirrorer := storage.NewMirrorer(storage.MirrorerOptions{
		Objects:     objects,
		MaxAttempts: cfg.MirrorAttempts,
		Logger:      logger,
	})

	notify := buildNotifier(ctx, cfg, logger)

	orch := orchestrator.New(jobs, creditLedger, buildGateways(ctx, cfg, runner, logger), mirrorer, notify, logger)
	poller := orchestrator.NewPoller(orch, jobs, orchestrator.PollerOptions{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
		MaxAge:      cfg.JobMaxAge,
	}, logger)

	logger.Info().Msg("worker: started")
	if err := poller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func buildGateways(ctx context.Context, cfg *infra.Config, sql infra.SQLExecutor, logger infra.Logger) *gateway.Registry {
	registry := gateway.NewRegistry()
	keys := credentials.NewStore(sql)
	dashScope := gateway.NewDashScope(gateway.DashScopeOptions{
		APIKey:  vendorKey(ctx, cfg.DashScopeAPIKey, keys, credentials.VendorDashScope, logger),
		BaseURL: cfg.DashScopeBaseURL,
	})
	registry.Register(domain.JobKindVideoSynthesis, dashScope)
	registry.Register(domain.JobKindLivePortrait, dashScope)
	registry.Register(domain.JobKindEmojiVideo, dashScope)
	registry.Register(domain.JobKindColorize, gateway.NewA302(gateway.A302Options{
		APIKey:  vendorKey(ctx, cfg.A302APIKey, keys, credentials.Vendor302AI, logger),
		BaseURL: cfg.A302BaseURL,
	}))
	registry.Register(domain.JobKindTTS, gateway.NewEdgeTTS(gateway.EdgeTTSOptions{
		BaseURL: cfg.EdgeTTSBaseURL,
	}))
	return registry
}

func vendorKey(ctx context.Context, envKey string, keys *credentials.Store, vendor string, logger infra.Logger) string {
	if envKey != "" {
		return envKey
	}
	stored, err := keys.APIKey(ctx, vendor)
	if err != nil {
		logger.Warn().Err(err).Str("vendor", vendor).Msg("worker: failed to load stored api key")
		return ""
	}
	if stored == "" {
		logger.Warn().Str("vendor", vendor).Msg("worker: no api key configured, submissions will fail")
	}
	return stored
}

func buildObjectStore(cfg *infra.Config) (storage.ObjectStore, error) {
	if cfg.StorageDriver == "supabase" {
		return storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	}
	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return storage.NewFileStore(path, cfg.StorageBaseURL)
}

func buildNotifier(ctx context.Context, cfg *infra.Config, logger infra.Logger) notifier.Notifier {
	base := notifier.LogNotifier{Logger: logger}
	if cfg.RedisAddr == "" {
		return base
	}
	redisNotifier, err := notifier.NewRedisNotifier(ctx, notifier.RedisOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		UseTLS:   cfg.RedisUseTLS,
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: redis notifier unavailable, falling back to log only")
		return base
	}
	return notifier.Multi{base, redisNotifier}
}
