// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"slideshow-batch/internal/config"
	"slideshow-batch/internal/domain/ports/adapter"
	aiAdapters "slideshow-batch/internal/infra/adapters/ai"
	"slideshow-batch/internal/infra/adapters/notify"
	"slideshow-batch/internal/infra/adapters/source"
	"slideshow-batch/internal/infra/adapters/storage"
	pg "slideshow-batch/internal/infra/db/postgres"
	"slideshow-batch/internal/infra/logging"
	"slideshow-batch/internal/infra/metrics"
	"slideshow-batch/internal/infra/ratelimit"
	red "slideshow-batch/internal/infra/redis"
	"slideshow-batch/internal/infra/retry"
	"slideshow-batch/internal/infra/sched"
	"slideshow-batch/internal/infra/web"
	"slideshow-batch/internal/infra/worker"
	"slideshow-batch/internal/usecase"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: noop generation, local storage, no notifications")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("schema")
	}

	txm := pg.NewTxManager(pool)
	batchRepo := pg.NewBatchRepo(pool)
	linkRepo := pg.NewLinkRepo(pool)
	variationRepo := pg.NewVariationRepo(pool)

	// ---- Redis (optional: distributed limiter + retry lock) ----
	var (
		locker  red.Locker
		limiter ratelimit.Limiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		locker = red.NewLocker(redisClient)
		if cfg.Batch.DistributedLimiter {
			limiter = ratelimit.NewRedisLimiter(redisClient, cfg.Batch.RPM, cfg.Batch.Concurrency, logger)
		}
	}
	if limiter == nil {
		limiter = ratelimit.NewIntervalLimiter(cfg.Batch.RPM, cfg.Batch.Concurrency)
	}

	// ---- Generation adapters (Gemini -> OpenAI fallback) ----
	prompts := aiAdapters.NewPromptBuilder(cfg.AI.MaxPromptTokens)

	var generator adapter.GenerationAdapter
	if cfg.Runtime.Dev {
		generator = aiAdapters.NewNoopAdapter()
	} else {
		var providers []adapter.GenerationAdapter
		if cfg.AI.GeminiKey != "" {
			gem, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel, prompts)
			if err != nil {
				logger.Fatal().Err(err).Msg("gemini adapter")
			}
			providers = append(providers, gem)
			logger.Info().Str("model", cfg.AI.GeminiModel).Msg("generation provider: gemini")
		}
		if cfg.AI.OpenAIKey != "" {
			oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIImgModel, prompts)
			if err != nil {
				logger.Fatal().Err(err).Msg("openai adapter")
			}
			providers = append(providers, oa)
			logger.Info().Str("model", cfg.AI.OpenAIImgModel).Msg("generation provider: openai")
		}
		if len(providers) == 0 {
			logger.Fatal().Msgf("no generation provider configured: set ai.gemini_key or ai.openai_key in %s", *cfgPath)
		}
		generator = aiAdapters.NewMultiAdapter(logger, providers...)
	}

	// ---- Storage ----
	var store adapter.StorageAdapter
	if cfg.Runtime.Dev {
		store = storage.NewLocalAdapter("./output")
	} else {
		store, err = storage.NewDriveAdapter(ctx, cfg.Drive.CredentialsFile, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("drive adapter")
		}
	}

	// ---- Content source ----
	scraper := source.NewTikTokScraper(cfg.Source.APIKey, cfg.Source.APIHost, cfg.Source.Timeout, logger)

	// ---- Notifier ----
	var notifier adapter.Notifier = notify.NewNoopNotifier()
	if !cfg.Runtime.Dev && cfg.Telegram.Token != "" {
		notifier, err = notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
	}

	// ---- Orchestration engine ----
	policy := retry.Policy{
		MaxAttempts: cfg.Batch.MaxAttempts,
		BaseDelay:   cfg.Batch.BaseDelay,
		MaxDelay:    2 * time.Minute,
		Jitter:      true,
	}
	registry := worker.NewRegistry(cfg.Batch.MaxConcurrentBatches)
	variationWorker := worker.NewVariationWorker(
		variationRepo, limiter, generator, store,
		policy, cfg.Batch.CallTimeout, cfg.Batch.AcquireTimeout, logger,
	)
	linkCoord := worker.NewLinkCoordinator(linkRepo, variationRepo, scraper, store, variationWorker, policy, logger)
	batchCoord := worker.NewBatchCoordinator(
		batchRepo, linkRepo, variationRepo, store, notifier,
		linkCoord, registry, cfg.Drive.RootFolderID, cfg.Batch.LinkConcurrency, logger,
	)

	dispatch := worker.NewPool(cfg.Batch.MaxConcurrentBatches, logger)
	dispatch.Start(ctx)
	defer dispatch.Stop()

	// ---- Use cases ----
	batchUC := usecase.NewBatchUC(
		txm, batchRepo, linkRepo, variationRepo,
		dispatch, batchCoord, registry, locker,
		cfg.Batch.MaxLinks, logger,
	)
	progressUC := usecase.NewProgressUC(txm, batchRepo, linkRepo, variationRepo)

	// ---- Retention worker (hourly) ----
	retention := sched.NewRetentionWorker(time.Hour, cfg.Batch.RetentionDays, batchRepo, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Server.AdminSecret, cfg.Server.SessionSecret, cfg.Server.SecureCookies, 30*time.Minute)
	server := web.NewServer(batchUC, progressUC, retention, auth, logger)
	go func() {
		if err := server.Start(cfg.Server.Port); err != nil {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	// ---- Graceful shutdown ----
	<-ctx.Done()
	logger.Info().Msg("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
