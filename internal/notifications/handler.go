package notifications

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

// Handler serves the current user's notification feed.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermNotificationsView))
		r.Get("/", h.list)
		r.Get("/unread-count", h.unreadCount)
		r.Post("/read-all", h.readAll)
		r.Post("/{id}/read", h.read)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{ListFilters: shared.ParseListFilters(r)}
	filter.UnreadOnly, _ = strconv.ParseBool(r.URL.Query().Get("unread"))
	list, total, err := h.service.List(r.Context(), shared.ActorID(r.Context()), filter)
	if err != nil {
		h.fail(w, "list notifications", err)
		return
	}
	httpx.Page(w, list, shared.NewPagination(filter.Page, filter.Limit, total))
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.UnreadCount(r.Context(), shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "count unread notifications", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int{"count": n})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := h.service.MarkRead(r.Context(), shared.ActorID(r.Context()), id); err != nil {
		h.fail(w, "mark notification read", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"id": id, "read": true})
}

func (h *Handler) readAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.MarkAllRead(r.Context(), shared.ActorID(r.Context()))
	if err != nil {
		h.fail(w, "mark all notifications read", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"updated": n})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
