package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/rbac"
	"github.com/depotline/depot/internal/shared"
)

type stubTimelineService struct {
	result      Result
	exportRows  []TimelineRow
	lastFilters TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters TimelineFilters) (Result, error) {
	s.lastFilters = filters
	return s.result, nil
}

func (s *stubTimelineService) Export(_ context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	s.lastFilters = filters
	return s.exportRows, nil
}

func newTestRouter(svc TimelineService, perms ...string) *chi.Mux {
	h := NewHandler(nil, svc, rbac.Middleware{})
	h.now = func() time.Time { return time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := &shared.Principal{UserID: 1, Permissions: perms}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	})
	r.Route("/api/audit-logs", h.MountRoutes)
	return r
}

func get(r http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &stubTimelineService{result: Result{Rows: []TimelineRow{{ID: 1, Action: "user.create"}}, Paging: PagingInfo{Page: 1, PageSize: 20}}}
	rec := get(newTestRouter(svc, shared.PermAuditView), "/api/audit-logs")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "2026-03-15", svc.lastFilters.To.Format(time.DateOnly))
	assert.Equal(t, "2026-03-08", svc.lastFilters.From.Format(time.DateOnly))
	assert.Equal(t, 1, svc.lastFilters.Page)

	var body struct {
		Success bool   `json:"success"`
		Data    Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data.Rows, 1)
	assert.Equal(t, "user.create", body.Data.Rows[0].Action)
}

func TestTimelineParsesFilters(t *testing.T) {
	svc := &stubTimelineService{}
	rec := get(newTestRouter(svc, shared.PermAuditView),
		"/api/audit-logs?from=2026-03-01&to=2026-03-10&actor_id=4&entity=dispatch&entity_id=12&action=dispatch.ship&page=2&page_size=100")
	require.Equal(t, http.StatusOK, rec.Code)
	f := svc.lastFilters
	assert.Equal(t, int64(4), f.ActorID)
	assert.Equal(t, "dispatch", f.Entity)
	assert.Equal(t, "12", f.EntityID)
	assert.Equal(t, "dispatch.ship", f.Action)
	assert.Equal(t, 2, f.Page)
	assert.Equal(t, maxPageSize, f.PageSize)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	r := newTestRouter(&stubTimelineService{}, shared.PermAuditView)
	for _, target := range []string{
		"/api/audit-logs?to=15-03-2026",
		"/api/audit-logs?from=2026-03-10&to=2026-03-01",
		"/api/audit-logs?from=2025-01-01&to=2026-03-01",
		"/api/audit-logs?page=0",
		"/api/audit-logs?actor_id=abc",
	} {
		assert.Equal(t, http.StatusBadRequest, get(r, target).Code, target)
	}
}

func TestTimelineRequiresPermission(t *testing.T) {
	rec := get(newTestRouter(&stubTimelineService{}, shared.PermDispatchView), "/api/audit-logs")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestExportWritesCSV(t *testing.T) {
	svc := &stubTimelineService{exportRows: []TimelineRow{{At: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Action: "role.update", Entity: "role", EntityID: "3"}}}
	rec := get(newTestRouter(svc, shared.PermAuditView), "/api/audit-logs/export.csv?from=2026-03-01&to=2026-03-05")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "role.update,role,3")
}

func TestRepositoryWindowFilters(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM audit_logs a\s+LEFT JOIN users u ON u.id = a.actor_id WHERE a.occurred_at >= \? AND a.occurred_at < \? AND a.entity = \? ORDER BY a.occurred_at DESC, a.id DESC LIMIT \? OFFSET \?`).
		WithArgs(from, to.AddDate(0, 0, 1), "dispatch", 21, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "actor_id", "name", "action", "entity", "entity_id", "meta"}).
			AddRow(int64(9), at, int64(2), "Maya", "dispatch.create", "dispatch", "12", []byte(`{"lines":1}`)).
			AddRow(int64(8), at, nil, "", "dispatch.cancel", "dispatch", "11", []byte("null")))

	rows, err := NewRepository(pool).Window(context.Background(), TimelineFilters{From: from, To: to, Entity: "dispatch"}, 20, 21)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0].ActorID)
	assert.JSONEq(t, `{"lines":1}`, string(rows[0].Meta))
	assert.Zero(t, rows[1].ActorID)
	assert.Nil(t, rows[1].Meta)
	require.NoError(t, mock.ExpectationsWereMet())
}
