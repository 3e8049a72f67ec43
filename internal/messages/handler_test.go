package messages

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

func routerFor(f fixture, userID int64, perms ...string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			p := &shared.Principal{UserID: userID, Permissions: perms}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/api/messages", NewHandler(nil, f.svc, rbac.Middleware{}).MountRoutes)
	return r
}

func call(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestHandlerConversation(t *testing.T) {
	f := newFixture()
	dina := routerFor(f, 4, shared.PermMessagesView, shared.PermMessagesSend)
	eko := routerFor(f, 6, shared.PermMessagesView)
	admin := routerFor(f, 1, shared.PermMessagesView)

	rec := call(dina, http.MethodPost, "/api/messages", `{"recipient_id":6,"subject":"Pickup","body":"Truck at 10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"recipient_name":"Eko"`)

	rec = call(eko, http.MethodPost, "/api/messages", `{"recipient_id":4,"body":"ok"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(eko, http.MethodGet, "/api/messages?box=inbox", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"Pickup"`)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = call(dina, http.MethodGet, "/api/messages?box=sent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subject":"Pickup"`)

	assert.Equal(t, http.StatusBadRequest, call(dina, http.MethodGet, "/api/messages?box=trash", "").Code)
	assert.Equal(t, http.StatusForbidden, call(admin, http.MethodGet, "/api/messages/1", "").Code)
	assert.Equal(t, http.StatusNotFound, call(eko, http.MethodGet, "/api/messages/5", "").Code)
	assert.Equal(t, http.StatusForbidden, call(dina, http.MethodPost, "/api/messages/1/read", "").Code)

	rec = call(eko, http.MethodPost, "/api/messages/1/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"read_at"`)
}

func TestHandlerSendValidation(t *testing.T) {
	f := newFixture()
	dina := routerFor(f, 4, shared.PermMessagesSend)

	rec := call(dina, http.MethodPost, "/api/messages", `{"recipient_id":6}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"body"`)

	rec = call(dina, http.MethodPost, "/api/messages", `{"recipient_id":6,"body":"x","cc":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
