package users

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/shared"
)

var userRowColumns = []string{"id", "name", "email", "role_id", "role", "is_active", "last_login_at", "created_at", "updated_at"}

func TestRepositoryCreateMapsDuplicateEmail(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'users.email'"})

	_, err = NewRepository(pool).Create(context.Background(), User{Name: "A", Email: "a@b.c", RoleID: 1}, "hash")
	assert.ErrorIs(t, err, ErrEmailTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateReturnsStoredUser(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Ana", "ana@depot.test", "hash", int64(2), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(`SELECT (.+) FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = \?`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(5, "Ana", "ana@depot.test", 2, "dispatcher", true, nil, now, now))

	user, err := NewRepository(pool).Create(context.Background(), User{Name: "Ana", Email: "ana@depot.test", RoleID: 2, IsActive: true}, "hash")
	require.NoError(t, err)
	assert.Equal(t, int64(5), user.ID)
	assert.Equal(t, "dispatcher", user.Role)
	assert.Nil(t, user.LastLoginAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListAppliesFilters(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	roleID := int64(2)
	filters := ListFilters{ListFilters: shared.ListFilters{Page: 2, Limit: 10, Search: "an", SortBy: "email", SortDir: "desc"}, RoleID: &roleID}
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users u WHERE 1=1 AND u.role_id = \? AND \(u.name LIKE \? OR u.email LIKE \?\)`).
		WithArgs(int64(2), "%an%", "%an%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`ORDER BY u.email DESC LIMIT \? OFFSET \?`).
		WithArgs(int64(2), "%an%", "%an%", 10, 10).
		WillReturnRows(sqlmock.NewRows(userRowColumns).AddRow(11, "Dan", "dan@depot.test", 2, "dispatcher", true, now, now, now))

	users, total, err := NewRepository(pool).List(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	require.Len(t, users, 1)
	require.NotNil(t, users[0].LastLoginAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryActiveIDsByRoles(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	mock.ExpectQuery(`WHERE u.is_active = 1 AND r.name IN \(\?,\?\)`).
		WithArgs("admin", "manager").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(4))

	ids, err := NewRepository(pool).ActiveIDsByRoles(context.Background(), []string{"admin", "manager"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListEscapesSearchWildcards(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users u WHERE 1=1 AND \(u.name LIKE \? OR u.email LIKE \?\)`).
		WithArgs(`%ana\_b%`, `%ana\_b%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM users u JOIN roles r ON r.id = u.role_id WHERE 1=1`).
		WithArgs(`%ana\_b%`, `%ana\_b%`).
		WillReturnRows(sqlmock.NewRows(userRowColumns))

	filters := ListFilters{ListFilters: shared.ListFilters{Search: "ana_b"}}
	list, total, err := NewRepository(pool).List(context.Background(), filters)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}
