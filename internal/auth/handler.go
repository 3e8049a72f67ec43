package auth

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

// Handler wires HTTP endpoints for authentication.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authn   *Authenticator
}

// NewHandler creates a new auth handler.
func NewHandler(logger *slog.Logger, service *Service, authn *Authenticator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authn: authn}
}

// MountRoutes attaches auth routes to router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Group(func(r chi.Router) {
		r.Use(h.authn.Authenticate)
		r.Post("/logout", h.logout)
		r.Get("/me", h.me)
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), in, clientMeta(r))
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	h.logger.Info("user logged in", slog.Int64("user_id", session.User.ID))
	httpx.OK(w, http.StatusOK, session)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var in RefreshInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Refresh(r.Context(), in, clientMeta(r))
	if err != nil {
		h.fail(w, "refresh token", err)
		return
	}
	httpx.OK(w, http.StatusOK, session)
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var in logoutRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if err := h.service.Logout(r.Context(), shared.PrincipalFromContext(r.Context()), in.RefreshToken); err != nil {
		h.fail(w, "logout", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]bool{"logged_out": true})
}

type meResponse struct {
	User        User     `json:"user"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	user, perms, err := h.service.Me(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, "current user", err)
		return
	}
	httpx.OK(w, http.StatusOK, meResponse{User: user, Permissions: perms})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func clientMeta(r *http.Request) ClientMeta {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientMeta{IP: ip, UserAgent: r.UserAgent()}
}
