package rbac

import (
	"log/slog"
	"net/http"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects
// the authentication middleware to have placed a shared.Principal in the
// request context.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, hasAnyPermission)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require(normalized, hasAllPermissions)
}

func (m Middleware) require(required []string, check func(granted, required []string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.Fail(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted := principal.Permissions
			if granted == nil && m.Service != nil {
				loaded, err := m.Service.PermissionsForRole(r.Context(), principal.Role)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("rbac load permissions", slog.String("role", principal.Role), slog.Any("error", err))
					}
					httpx.Fail(w, http.StatusInternalServerError, "internal server error")
					return
				}
				granted = loaded
			}
			if check(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Fail(w, http.StatusForbidden, "you do not have permission to perform this action")
		})
	}
}
