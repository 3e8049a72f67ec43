package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
	hashes map[int64]string
	roles  map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:  map[int64]User{},
		hashes: map[int64]string{},
		roles:  map[int64]string{1: "admin", 2: "dispatcher"},
	}
}

func (m *memoryRepo) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []User{}
	for _, u := range m.users {
		if filters.RoleID != nil && u.RoleID != *filters.RoleID {
			continue
		}
		if filters.Search != "" && !strings.Contains(u.Name+u.Email, filters.Search) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) Create(ctx context.Context, user User, hash string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return User{}, ErrEmailTaken
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.Role = m.roles[user.RoleID]
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	m.hashes[user.ID] = hash
	return user, nil
}

func (m *memoryRepo) Update(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	user.Role = m.roles[user.RoleID]
	m.users[user.ID] = user
	return nil
}

func (m *memoryRepo) SetPassword(ctx context.Context, id int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	m.hashes[id] = hash
	return nil
}

func (m *memoryRepo) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	_, ok := m.roles[roleID]
	return ok, nil
}

func (m *memoryRepo) ActiveIDsByRoles(ctx context.Context, roles []string) ([]int64, error) {
	return nil, nil
}

type recordingAuditor struct {
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type spyRevoker struct {
	revoked []int64
}

func (s *spyRevoker) RevokeUser(ctx context.Context, userID int64) error {
	s.revoked = append(s.revoked, userID)
	return nil
}

var revoker = &spyRevoker{}

func newTestService() (*Service, *memoryRepo, *recordingAuditor) {
	repo := newMemoryRepo()
	audit := &recordingAuditor{}
	revoker = &spyRevoker{}
	svc := NewService(repo, audit, revoker, nil)
	svc.hashCost = bcrypt.MinCost
	return svc, repo, audit
}

func TestCreateHashesPasswordAndNormalizesEmail(t *testing.T) {
	svc, repo, audit := newTestService()
	user, err := svc.Create(context.Background(), CreateInput{Name: " Rina ", Email: " Rina@Depot.Test ", Password: "s3cret-pass", RoleID: 2})
	require.NoError(t, err)

	assert.Equal(t, "rina@depot.test", user.Email)
	assert.Equal(t, "Rina", user.Name)
	assert.True(t, user.IsActive)
	assert.Equal(t, "dispatcher", user.Role)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.hashes[user.ID]), []byte("s3cret-pass")))
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "user.create", audit.logs[0].Action)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Create(context.Background(), CreateInput{Name: "A", Email: "bad", Password: "short"})
	var fe *httpx.FieldErrors
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Fields, "email")
	assert.Contains(t, fe.Fields, "password")
	assert.Contains(t, fe.Fields, "role_id")

	_, err = svc.Create(context.Background(), CreateInput{Name: "Abe", Email: "abe@depot.test", Password: "longenough", RoleID: 99})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDeactivateSelfIsRejected(t *testing.T) {
	svc, _, _ := newTestService()
	user, err := svc.Create(context.Background(), CreateInput{Name: "Owner", Email: "owner@depot.test", Password: "longenough", RoleID: 1})
	require.NoError(t, err)

	ctx := shared.ContextWithPrincipal(context.Background(), &shared.Principal{UserID: user.ID})
	assert.ErrorIs(t, svc.Deactivate(ctx, user.ID), ErrSelfDeactivate)

	inactive := false
	_, err = svc.Update(ctx, user.ID, UpdateInput{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrSelfDeactivate)

	require.NoError(t, svc.Deactivate(context.Background(), user.ID))
	got, err := svc.Get(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []int64{user.ID}, revoker.revoked)
}

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &shared.Principal{UserID: 1000, Role: "admin", Permissions: []string{shared.PermissionAll}}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/api/users", NewHandler(nil, svc, rbac.Middleware{}).MountRoutes)
	return r
}

func TestCreateUserReturns201AndAppearsInList(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc)

	body := `{"name":"Dewi","email":"dewi@depot.test","password":"password123","role_id":2}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Success bool `json:"success"`
		Data    User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Success)
	assert.NotZero(t, created.Data.ID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Success bool              `json:"success"`
		Data    []User            `json:"data"`
		Meta    shared.Pagination `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)
	assert.Equal(t, "dewi@depot.test", listed.Data[0].Email)
	assert.Equal(t, 1, listed.Meta.Total)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	svc, _, _ := newTestService()
	router := newTestRouter(svc)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/", strings.NewReader(`{"email":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/users/77", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
