package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/depotline/depot/internal/auth"
	"github.com/depotline/depot/internal/shared"
	_ "github.com/depotline/depot/testing"
)

type stubRepo struct {
	users    map[string]*auth.User
	sessions []auth.SessionRecord
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if u, ok := s.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, auth.ErrUserNotFoundForTest
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrUserNotFoundForTest
}

func (s *stubRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error { return nil }

func (s *stubRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	s.sessions = append(s.sessions, rec)
	return nil
}

type staticPerms map[string][]string

func (p staticPerms) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	return p[role], nil
}

type fixture struct {
	repo    *stubRepo
	service *auth.Service
	router  http.Handler
	redis   *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &stubRepo{users: map[string]*auth.User{
		"sari@depot.test": {ID: 7, Name: "Sari", Email: "sari@depot.test", Role: "dispatcher", PasswordHash: string(hash), IsActive: true},
		"old@depot.test":  {ID: 8, Name: "Old", Email: "old@depot.test", Role: "viewer", PasswordHash: string(hash), IsActive: false},
	}}
	tokens := auth.NewTokenManager(auth.TokenConfig{Secret: "test-secret-0123456789", Issuer: "depot", AccessTTL: time.Minute, RefreshTTL: time.Hour})
	svc := auth.NewService(repo, tokens, auth.NewRedisBlacklist(client), staticPerms{"dispatcher": {shared.PermDispatchCreate}}, nil)
	authn := auth.NewAuthenticator(svc, nil)

	r := chi.NewRouter()
	r.Route("/api/auth", auth.NewHandler(nil, svc, authn).MountRoutes)
	r.With(authn.Authenticate).Get("/api/private", func(w http.ResponseWriter, r *http.Request) {
		p := shared.PrincipalFromContext(r.Context())
		_, _ = w.Write([]byte(p.Role))
	})
	return &fixture{repo: repo, service: svc, router: r, redis: mr}
}

type sessionEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Data    auth.Session `json:"data"`
}

func (f *fixture) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) auth.Session {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", `{"email":"Sari@depot.test","password":"correct-horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	return env.Data
}

func TestLoginIssuesTokensAndPermissions(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "Bearer", session.TokenType)
	assert.Equal(t, int64(7), session.User.ID)
	assert.Equal(t, []string{shared.PermDispatchCreate}, session.Permissions)
	require.Len(t, f.repo.sessions, 1)

	rec := f.do(t, http.MethodGet, "/api/private", "", session.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dispatcher", rec.Body.String())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"email":"sari@depot.test","password":"wrong"}`,
		`{"email":"ghost@depot.test","password":"correct-horse"}`,
		`{"email":"old@depot.test","password":"correct-horse"}`,
	} {
		rec := f.do(t, http.MethodPost, "/api/auth/login", body, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, body)
		var env sessionEnvelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "invalid email or password")
	}
}

func TestProtectedRouteRequiresBearer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/private", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/private", "", "garbage").Code)

	session := f.login(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/private", "", session.RefreshToken).Code)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/auth/logout", `{"refresh_token":"`+session.RefreshToken+`"}`, session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/private", "", session.AccessToken).Code)
	rec = f.do(t, http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+session.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	rec := f.do(t, http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+session.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var env sessionEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEqual(t, session.RefreshToken, env.Data.RefreshToken)

	rec = f.do(t, http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+session.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRevokeUserInvalidatesIssuedTokens(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	require.NoError(t, f.service.RevokeUser(context.Background(), 7))
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/private", "", session.AccessToken).Code)
}

func TestMeReturnsProfile(t *testing.T) {
	f := newFixture(t)
	session := f.login(t)

	rec := f.do(t, http.MethodGet, "/api/auth/me", "", session.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"sari@depot.test"`)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestBypassAuthenticator(t *testing.T) {
	authn := auth.NewBypassAuthenticator(1, nil)
	h := authn.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := shared.PrincipalFromContext(r.Context())
		assert.True(t, p.Can(shared.PermUsersEdit))
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/ws?token=abc", nil)
	assert.Equal(t, "", auth.BearerToken(req))
	req.Header.Set("Upgrade", "websocket")
	assert.Equal(t, "abc", auth.BearerToken(req))
	req.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", auth.BearerToken(req))
	req.Header.Set("Authorization", "Basic xyz")
	assert.Equal(t, "", auth.BearerToken(req))
}
