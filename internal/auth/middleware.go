package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// Authenticator resolves the bearer token of each request into a
// shared.Principal stored in the request context.
type Authenticator struct {
	service *Service
	bypass  *shared.Principal
	logger  *slog.Logger
}

// NewAuthenticator builds an Authenticator enforcing bearer tokens.
func NewAuthenticator(service *Service, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{service: service, logger: logger}
}

// NewBypassAuthenticator builds an Authenticator that skips token checks and
// acts as userID with every permission. Only for non-production environments.
func NewBypassAuthenticator(userID int64, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("authentication bypass enabled", slog.Int64("user_id", userID))
	return &Authenticator{
		logger: logger,
		bypass: &shared.Principal{
			UserID:      userID,
			Email:       "bypass@depot.local",
			Name:        "Auth bypass",
			Role:        "admin",
			Permissions: []string{shared.PermissionAll},
		},
	}
}

// Authenticate rejects requests without a valid bearer token.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.bypass != nil {
			p := *a.bypass
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), &p)))
			return
		}
		raw := BearerToken(r)
		if raw == "" {
			httpx.RespondError(w, ErrMissingToken)
			return
		}
		principal, err := a.service.PrincipalFromToken(r.Context(), raw)
		if err != nil {
			if !errors.Is(err, httpx.ErrUnauthorized) {
				a.logger.Error("authenticate request", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// BearerToken extracts the token from the Authorization header. WebSocket
// upgrades may pass it as the token query parameter since browsers cannot
// set headers on them.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}
