package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/creamery-pos/creamery-pos/internal/adjustments"
	"github.com/creamery-pos/creamery-pos/internal/app"
	"github.com/creamery-pos/creamery-pos/internal/deduction"
	"github.com/creamery-pos/creamery-pos/internal/ledger"
	"github.com/creamery-pos/creamery-pos/internal/platform/cache"
	"github.com/creamery-pos/creamery-pos/internal/platform/db"
	"github.com/creamery-pos/creamery-pos/internal/recipes"
	"github.com/creamery-pos/creamery-pos/internal/shared"
	"github.com/creamery-pos/creamery-pos/internal/stocktake"
	"github.com/creamery-pos/creamery-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, variance report caching disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditLogger := shared.NewAuditLogger(pool, logger)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore, logger)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	adjustmentsRepo := adjustments.NewRepository(pool)
	adjustmentsService := adjustments.NewService(adjustmentsRepo, ledgerService, approvalRecorder, auditLogger, logger)
	adjustmentsHandler := adjustments.NewHandler(logger, adjustmentsService)

	stockTakeRepo := stocktake.NewRepository(pool)
	stockTakeService := stocktake.NewService(stockTakeRepo, adjustmentsService, auditLogger, redisClient, logger)
	stockTakeService.SetCacheTTL(cfg.VarianceReportCacheTTL)
	stockTakeHandler := stocktake.NewHandler(logger, stockTakeService)

	catalog := recipes.DefaultCatalog()
	engine := deduction.NewEngine(catalog, logger,
		deduction.NewInventoryBackedSource(ledgerService),
		deduction.NewLegacyBatchBackedSource(pool))
	deductionHandler := deduction.NewHandler(logger, engine)

	jobHandler := jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		LedgerHandler:      ledgerHandler,
		StockTakeHandler:   stockTakeHandler,
		AdjustmentsHandler: adjustmentsHandler,
		DeductionHandler:   deductionHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
