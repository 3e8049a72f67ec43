package notifications

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/platform/httpx"
	"github.com/depotline/depot/internal/shared"
)

func TestRepositoryInsertAssignsConsecutiveIDs(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	in := Input{Type: "dispatch.ship", Title: "Dispatch DSP-20261019-0001 shipped", Link: "/dispatch/1"}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notifications (user_id, type, title, body, link, created_at) VALUES (?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?)`)).
		WithArgs(int64(3), in.Type, in.Title, "", in.Link, at, int64(8), in.Type, in.Title, "", in.Link, at).
		WillReturnResult(sqlmock.NewResult(40, 2))

	out, err := NewRepository(pool).Insert(context.Background(), []int64{3, 8}, in, at)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(40), out[0].ID)
	assert.Equal(t, int64(41), out[1].ID)
	assert.Equal(t, int64(8), out[1].UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListUnreadPage(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	created := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM notifications WHERE user_id = ? AND read_at IS NULL ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)).
		WithArgs(int64(4), 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "title", "body", "link", "read_at", "created_at"}).
			AddRow(int64(7), int64(4), "dispatch.create", "New dispatch", "", "/dispatch/2", nil, created))

	filter := ListFilter{ListFilters: shared.ListFilters{Page: 2, Limit: 2}, UnreadOnly: true}
	list, total, err := NewRepository(pool).List(context.Background(), 4, filter)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 1)
	assert.False(t, list[0].Read())
	assert.Equal(t, "/dispatch/2", list[0].Link)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMarkReadUnknown(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`)).
		WithArgs(at, int64(99), int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ? AND user_id = ?)`)).
		WithArgs(int64(99), int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err = NewRepository(pool).MarkRead(context.Background(), 4, 99, at)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
