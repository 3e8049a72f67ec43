package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// PermissionsHandler serves permission listings and the role matrix.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/matrix", h.matrix)
	r.With(h.rbac.RequireAny(shared.PermPermissionsView)).Get("/", h.listPermissions)
	r.With(h.rbac.RequireAny(shared.PermPermissionsEdit)).Post("/sync", h.sync)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, perms)
}

type matrixResponse struct {
	Roles       []RoleDefinition `json:"roles"`
	Permissions []string         `json:"permissions"`
	Current     []string         `json:"current"`
}

// matrix returns the static table plus the caller's effective permissions so
// the frontend can gate UI elements.
func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required")
		return
	}
	current := principal.Permissions
	if current == nil {
		perms, err := h.service.PermissionsForRole(r.Context(), principal.Role)
		if err != nil {
			h.logger.Error("load role permissions", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		current = perms
	}
	httpx.OK(w, http.StatusOK, matrixResponse{
		Roles:       h.service.Matrix().Roles(),
		Permissions: shared.AllScopes(),
		Current:     current,
	})
}

func (h *PermissionsHandler) sync(w http.ResponseWriter, r *http.Request) {
	inserted, err := h.service.SyncPermissions(r.Context())
	if err != nil {
		h.logger.Error("sync permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int{"inserted": inserted})
}
