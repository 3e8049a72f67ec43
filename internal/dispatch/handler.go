package dispatch

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

// IdempotencyHeader carries the client key that makes create retries safe.
const IdempotencyHeader = "Idempotency-Key"

// Handler manages dispatch endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers dispatch routes.
func (h *Handler) MountRoutes(r chi.Router) {
	// Dispatch form
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDispatchCreate))
		r.Get("/warehouses", h.warehouses)
		r.Get("/search-products", h.searchProducts)
		r.Post("/check-inventory", h.checkInventory)
		r.Post("/create", h.create)
	})

	// Dispatch routes - View
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermDispatchView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})

	// Dispatch routes - Workflow
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermDispatchUpdate))
		r.Post("/{id}/ship", h.ship)
		r.Post("/{id}/deliver", h.deliver)
	})
	r.With(h.rbac.RequireAll(shared.PermDispatchCancel)).Post("/{id}/cancel", h.cancel)
}

func (h *Handler) warehouses(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ActiveWarehouses(r.Context())
	if err != nil {
		h.fail(w, "list dispatch warehouses", err)
		return
	}
	httpx.OK(w, http.StatusOK, list)
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	q := ProductQuery{Text: r.URL.Query().Get("q")}
	if id := shared.QueryInt64(r, "warehouse_id"); id != nil {
		q.WarehouseID = *id
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	options, err := h.service.SearchProducts(r.Context(), q)
	if err != nil {
		h.fail(w, "search dispatch products", err)
		return
	}
	httpx.OK(w, http.StatusOK, options)
}

func (h *Handler) checkInventory(w http.ResponseWriter, r *http.Request) {
	var in CheckInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.CheckInventory(r.Context(), in)
	if err != nil {
		h.fail(w, "check inventory", err)
		return
	}
	httpx.OK(w, http.StatusOK, result)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, created, err := h.service.Create(r.Context(), in, r.Header.Get(IdempotencyHeader))
	if err != nil {
		var shortage *ShortageError
		if errors.As(err, &shortage) {
			httpx.JSON(w, http.StatusUnprocessableEntity, httpx.Envelope{
				Success: false,
				Message: shortage.Error(),
				Data:    CheckResult{WarehouseID: shortage.WarehouseID, Items: shortage.Lines},
			})
			return
		}
		h.fail(w, "create dispatch", err)
		return
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	httpx.OK(w, status, d)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list dispatches", err)
		return
	}
	httpx.Page(w, list, shared.NewPagination(filter.Page, filter.Limit, total))
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		ListFilters: shared.ParseListFilters(r),
		Status:      Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
		WarehouseID: shared.QueryInt64(r, "warehouse_id"),
	}
	fields := map[string]string{}
	if raw := q.Get("date_from"); raw != "" {
		from, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			fields["date_from"] = "must be YYYY-MM-DD"
		} else {
			filter.From = &from
		}
	}
	if raw := q.Get("date_to"); raw != "" {
		to, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			fields["date_to"] = "must be YYYY-MM-DD"
		} else {
			end := to.Add(24*time.Hour - time.Nanosecond)
			filter.To = &end
		}
	}
	if len(fields) > 0 {
		return ListFilter{}, &httpx.FieldErrors{Fields: fields}
	}
	return filter, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get dispatch", err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (h *Handler) ship(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var in ShipInput
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	d, err := h.service.Ship(r.Context(), id, in)
	if err != nil {
		h.fail(w, "ship dispatch", err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (h *Handler) deliver(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	d, err := h.service.Deliver(r.Context(), id)
	if err != nil {
		h.fail(w, "deliver dispatch", err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var in CancelInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	d, err := h.service.Cancel(r.Context(), id, in)
	if err != nil {
		h.fail(w, "cancel dispatch", err)
		return
	}
	httpx.OK(w, http.StatusOK, d)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid dispatch id")
		return 0, false
	}
	return id, true
}
