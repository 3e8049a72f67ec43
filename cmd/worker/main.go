package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/depotline/depot/internal/app"
	"github.com/depotline/depot/internal/dispatch"
	"github.com/depotline/depot/internal/inventory"
	jobmetrics "github.com/depotline/depot/internal/jobs"
	"github.com/depotline/depot/internal/masterdata/products"
	"github.com/depotline/depot/internal/masterdata/warehouses"
	"github.com/depotline/depot/internal/notifications"
	"github.com/depotline/depot/internal/platform/cache"
	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
	"github.com/depotline/depot/internal/users"
	"github.com/depotline/depot/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.MySQLDSN, db.PoolOptions{
		MaxOpenConns:    cfg.MySQLMaxOpenConns,
		MaxIdleConns:    cfg.MySQLMaxIdleConns,
		ConnMaxLifetime: cfg.MySQLConnMaxLifetime,
	})
	if err != nil {
		logger.Error("connect mysql", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("mysql close", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	matrix, err := rbac.DefaultMatrix()
	if err != nil {
		logger.Error("load permission matrix", slog.Any("error", err))
		os.Exit(1)
	}
	rbacService := rbac.NewService(rbac.NewRepository(pool), matrix, redisClient, logger)
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	searchService := search.NewService(search.NewRepository(pool), logger)
	usersService := users.NewService(users.NewRepository(pool), auditLogger, nil, logger)
	warehousesService := warehouses.NewService(warehouses.NewRepository(pool), searchService, auditLogger, logger)
	productsService := products.NewService(products.NewRepository(pool), searchService, auditLogger, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore, inventory.ServiceConfig{}, logger)
	notificationsService := notifications.NewService(notifications.NewRepository(pool), rbacService, usersService, nil, logger)
	dispatchService := dispatch.NewService(
		dispatch.NewRepository(pool),
		inventoryService,
		dispatch.NewCatalogAdapter(warehousesService, productsService),
		dispatch.Options{Indexer: searchService, Audit: auditLogger, Idempotency: idempotencyStore},
		logger,
	)

	lowStockJob := jobs.NewLowStockScanJob(inventoryService, notificationsService, idempotencyStore, logger, metrics)
	reindexJob := jobs.NewSearchReindexJob(searchService, map[search.EntityType]search.Source{
		search.EntityProduct:   productsService,
		search.EntityWarehouse: warehousesService,
		search.EntityDispatch:  dispatchService,
	}, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics)

	lowStockTask, err := jobs.NewLowStockScanTask(0)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	reindexTask, err := jobs.NewSearchReindexTask()
	if err != nil {
		logger.Error("build reindex task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(jobs.DefaultIdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskSearchReindex, Handler: reindexJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(jobs.MaxRetry)}},
			{Spec: cfg.SearchReindexCron, Task: reindexTask, Options: []asynq.Option{asynq.MaxRetry(jobs.MaxRetry)}},
			{Spec: cfg.IdempotencyCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(jobs.MaxRetry)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
