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

	"github.com/depotline/depot/internal/app"
	"github.com/depotline/depot/internal/audit"
	"github.com/depotline/depot/internal/auth"
	"github.com/depotline/depot/internal/dashboard"
	"github.com/depotline/depot/internal/dispatch"
	"github.com/depotline/depot/internal/inventory"
	"github.com/depotline/depot/internal/masterdata/products"
	"github.com/depotline/depot/internal/masterdata/warehouses"
	"github.com/depotline/depot/internal/messages"
	"github.com/depotline/depot/internal/notifications"
	"github.com/depotline/depot/internal/observability"
	"github.com/depotline/depot/internal/platform/cache"
	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/realtime"
	"github.com/depotline/depot/internal/roles"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/shared"
	"github.com/depotline/depot/internal/users"
	"github.com/depotline/depot/jobs"
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

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	matrix, err := rbac.DefaultMatrix()
	if err != nil {
		logger.Error("load permission matrix", slog.Any("error", err))
		os.Exit(1)
	}
	rbacService := rbac.NewService(rbac.NewRepository(pool), matrix, redisClient, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	tokens := auth.NewTokenManager(auth.TokenConfig{
		Secret:        cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.JWTAccessTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	authService := auth.NewService(auth.NewRepository(pool), tokens, auth.NewRedisBlacklist(redisClient), rbacService, logger)
	authenticator := auth.NewAuthenticator(authService, logger)
	if cfg.AuthBypassed() {
		authenticator = auth.NewBypassAuthenticator(cfg.AuthBypassUserID, logger)
	}

	searchService := search.NewService(search.NewRepository(pool), logger)

	usersService := users.NewService(users.NewRepository(pool), auditLogger, authService, logger)
	rolesService := roles.NewService(roles.NewRepository(pool), rbacService, auditLogger, logger)
	warehousesService := warehouses.NewService(warehouses.NewRepository(pool), searchService, auditLogger, logger)
	productsService := products.NewService(products.NewRepository(pool), searchService, auditLogger, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore, inventory.ServiceConfig{}, logger)

	hub := realtime.NewHub(logger, metrics, cfg.WSAllowedOrigins...)
	notificationsService := notifications.NewService(notifications.NewRepository(pool), rbacService, usersService, hub, logger)
	messagesService := messages.NewService(messages.NewRepository(pool), usersService, hub, logger)

	dispatchService := dispatch.NewService(
		dispatch.NewRepository(pool),
		inventoryService,
		dispatch.NewCatalogAdapter(warehousesService, productsService),
		dispatch.Options{
			Indexer:     searchService,
			Audit:       auditLogger,
			Notifier:    notificationsService,
			Idempotency: idempotencyStore,
			Metrics:     metrics,
		},
		logger,
	)
	dashboardService := dashboard.NewService(dashboard.NewRepository(pool), dashboard.NewCache(redisClient, cfg.DashboardTTL), cfg.Location(), logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		Authenticator:        authenticator,
		Hub:                  hub,
		DB:                   pool,
		AuthHandler:          auth.NewHandler(logger, authService, authenticator),
		UsersHandler:         users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:         roles.NewHandler(logger, rolesService, rbacMiddleware),
		PermissionsHandler:   rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware),
		WarehousesHandler:    warehouses.NewHandler(logger, warehousesService, rbacMiddleware),
		ProductsHandler:      products.NewHandler(logger, productsService, rbacMiddleware),
		InventoryHandler:     inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		DispatchHandler:      dispatch.NewHandler(logger, dispatchService, rbacMiddleware),
		NotificationsHandler: notifications.NewHandler(logger, notificationsService, rbacMiddleware),
		MessagesHandler:      messages.NewHandler(logger, messagesService, rbacMiddleware),
		SearchHandler:        search.NewHandler(logger, searchService, rbacMiddleware),
		DashboardHandler:     dashboard.NewHandler(logger, dashboardService, rbacMiddleware),
		AuditHandler:         audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:           jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
