package shared

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalCan(t *testing.T) {
	var nilPrincipal *Principal
	assert.False(t, nilPrincipal.Can(PermUsersView))

	viewer := &Principal{Permissions: []string{PermDispatchView}}
	assert.True(t, viewer.Can(PermDispatchView))
	assert.False(t, viewer.Can(PermDispatchCreate))

	admin := &Principal{Permissions: []string{PermissionAll}}
	assert.True(t, admin.Can(PermInventoryExport))
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, PrincipalFromContext(ctx))
	assert.Zero(t, ActorID(ctx))

	ctx = ContextWithPrincipal(ctx, &Principal{UserID: 42})
	assert.Equal(t, int64(42), ActorID(ctx))
}

func TestAllScopesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range AllScopes() {
		assert.False(t, seen[p], "duplicate permission %s", p)
		seen[p] = true
	}
	assert.True(t, seen[PermDispatchCreate])
	assert.True(t, seen[PermUsersEdit])
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 41)
	assert.Equal(t, Pagination{Page: 1, PerPage: 20, Total: 41, TotalPages: 3}, p)
}

func TestParseListFilters(t *testing.T) {
	r := httptest.NewRequest("GET", "/?page=3&limit=500&search=+bolt+&sort=name&dir=DESC&active=false", nil)
	f := ParseListFilters(r)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, MaxLimit, f.Limit)
	assert.Equal(t, "bolt", f.Search)
	assert.Equal(t, SortDesc, f.SortDir)
	require.NotNil(t, f.IsActive)
	assert.False(t, *f.IsActive)
	assert.Equal(t, 400, f.Offset())

	f = ParseListFilters(httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, DefaultPage, f.Page)
	assert.Equal(t, DefaultLimit, f.Limit)
	assert.Nil(t, f.IsActive)
	assert.Zero(t, f.Offset())
}

func TestIdempotencyStoreConflict(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	store := NewIdempotencyStore(pool)
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("abc", "dispatch", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("abc", "dispatch", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	require.NoError(t, store.CheckAndInsert(context.Background(), "abc", "dispatch"))
	assert.ErrorIs(t, store.CheckAndInsert(context.Background(), "abc", "dispatch"), ErrIdempotencyConflict)
	assert.Error(t, store.CheckAndInsert(context.Background(), "", "dispatch"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyStoreCleanup(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	mock.ExpectExec("DELETE FROM idempotency_keys WHERE created_at <").
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := NewIdempotencyStore(pool).Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditLoggerRecord(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	logger := NewAuditLogger(pool)
	ctx := ContextWithPrincipal(context.Background(), &Principal{UserID: 9})
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(int64(9), "dispatch.create", "dispatch", "12", []byte(`{"lines":2}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, logger.Record(ctx, AuditLog{Action: "dispatch.create", Entity: "dispatch", EntityID: "12", Meta: map[string]any{"lines": 2}}))
	assert.Error(t, logger.Record(ctx, AuditLog{Action: "x"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
