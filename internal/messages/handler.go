package messages

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

// Handler exposes the messaging endpoints.
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

// MountRoutes registers message routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMessagesView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
		r.Post("/{id}/read", h.read)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermMessagesSend))
		r.Post("/", h.send)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	box, err := ParseBox(r.URL.Query().Get("box"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{ListFilters: shared.ParseListFilters(r), Box: box}
	list, total, err := h.service.List(r.Context(), shared.ActorID(r.Context()), filter)
	if err != nil {
		h.fail(w, "list messages", err)
		return
	}
	httpx.Page(w, list, shared.NewPagination(filter.Page, filter.Limit, total))
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	var in SendInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	msg, err := h.service.Send(r.Context(), shared.ActorID(r.Context()), in)
	if err != nil {
		h.fail(w, "send message", err)
		return
	}
	httpx.OK(w, http.StatusCreated, msg)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	msg, err := h.service.Get(r.Context(), shared.ActorID(r.Context()), id)
	if err != nil {
		h.fail(w, "get message", err)
		return
	}
	httpx.OK(w, http.StatusOK, msg)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	msg, err := h.service.MarkRead(r.Context(), shared.ActorID(r.Context()), id)
	if err != nil {
		h.fail(w, "mark message read", err)
		return
	}
	httpx.OK(w, http.StatusOK, msg)
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
		httpx.Fail(w, http.StatusBadRequest, "invalid message id")
		return 0, false
	}
	return id, true
}
