package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	mdshared "github.com/depotline/depot/internal/masterdata/shared"
	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

// Handler exposes /api/products.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers product routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermProductsView, shared.PermProductsEdit))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermProductsEdit))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{ListFilters: shared.ParseListFilters(r)}
	list, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		mdshared.Fail(h.logger, w, "list products", err)
		return
	}
	httpx.Page(w, list, shared.NewPagination(filters.Page, filters.Limit, total))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := mdshared.ParseID(w, r, "product")
	if !ok {
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		mdshared.Fail(h.logger, w, "get product", err)
		return
	}
	httpx.OK(w, http.StatusOK, p)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Create(r.Context(), in)
	if err != nil {
		mdshared.Fail(h.logger, w, "create product", err)
		return
	}
	httpx.OK(w, http.StatusCreated, p)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := mdshared.ParseID(w, r, "product")
	if !ok {
		return
	}
	var in ProductInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		mdshared.Fail(h.logger, w, "update product", err)
		return
	}
	httpx.OK(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := mdshared.ParseID(w, r, "product")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		mdshared.Fail(h.logger, w, "delete product", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
