package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

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
	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/realtime"
	"github.com/depotline/depot/internal/roles"
	"github.com/depotline/depot/internal/search"
	"github.com/depotline/depot/internal/users"
	"github.com/depotline/depot/jobs"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	Metrics       *observability.Metrics
	Authenticator *auth.Authenticator
	Hub           *realtime.Hub
	DB            Pinger

	AuthHandler          *auth.Handler
	UsersHandler         *users.Handler
	RolesHandler         *roles.Handler
	PermissionsHandler   *rbac.PermissionsHandler
	WarehousesHandler    *warehouses.Handler
	ProductsHandler      *products.Handler
	InventoryHandler     *inventory.Handler
	DispatchHandler      *dispatch.Handler
	NotificationsHandler *notifications.Handler
	MessagesHandler      *messages.Handler
	SearchHandler        *search.Handler
	DashboardHandler     *dashboard.Handler
	AuditHandler         *audit.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with depot defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", healthz(params.DB, logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Hub != nil {
			r.With(params.Authenticator.Authenticate).Get("/ws", params.Hub.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			for _, mw := range RequestMiddleware(params.Config) {
				r.Use(mw)
			}
			if params.AuthHandler != nil {
				r.Route("/auth", params.AuthHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}

			r.Group(func(r chi.Router) {
				r.Use(params.Authenticator.Authenticate)
				if params.UsersHandler != nil {
					r.Route("/users", params.UsersHandler.MountRoutes)
				}
				if params.RolesHandler != nil {
					r.Route("/roles", params.RolesHandler.MountRoutes)
				}
				if params.PermissionsHandler != nil {
					r.Route("/permissions", params.PermissionsHandler.MountRoutes)
				}
				if params.WarehousesHandler != nil {
					r.Route("/warehouses", params.WarehousesHandler.MountRoutes)
				}
				if params.ProductsHandler != nil {
					r.Route("/products", params.ProductsHandler.MountRoutes)
				}
				if params.InventoryHandler != nil {
					r.Route("/inventory", params.InventoryHandler.MountRoutes)
				}
				if params.DispatchHandler != nil {
					r.Route("/dispatch", params.DispatchHandler.MountRoutes)
				}
				if params.NotificationsHandler != nil {
					r.Route("/notifications", params.NotificationsHandler.MountRoutes)
				}
				if params.MessagesHandler != nil {
					r.Route("/messages", params.MessagesHandler.MountRoutes)
				}
				if params.SearchHandler != nil {
					r.Route("/search", params.SearchHandler.MountRoutes)
				}
				if params.DashboardHandler != nil {
					r.Route("/dashboard", params.DashboardHandler.MountRoutes)
				}
				if params.AuditHandler != nil {
					r.Route("/audit-logs", params.AuditHandler.MountRoutes)
				}
			})
		})
	})
	return r
}

func healthz(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				logger.Warn("healthz database ping", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
