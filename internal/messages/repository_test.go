package messages

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/shared"
)

var messageColumns = []string{"id", "sender_id", "sender_name", "recipient_id", "recipient_name", "subject", "body", "read_at", "created_at"}

func TestRepositoryListSentBox(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM messages m WHERE m.sender_id = ? AND (m.subject LIKE ? OR m.body LIKE ?)`)).
		WithArgs(int64(4), "%100\\%%", "%100\\%%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE m.sender_id = ? AND (m.subject LIKE ? OR m.body LIKE ?) ORDER BY m.created_at DESC, m.id DESC LIMIT ? OFFSET ?`)).
		WithArgs(int64(4), "%100\\%%", "%100\\%%", 20, 0).
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow(int64(3), int64(4), "Dina", int64(6), "Eko", "Stock", "100% packed", nil, at))

	filter := ListFilter{ListFilters: shared.ListFilters{Page: 1, Limit: 20, Search: "100%"}, Box: BoxSent}
	list, total, err := NewRepository(pool).List(context.Background(), 4, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "Eko", list[0].RecipientName)
	assert.Nil(t, list[0].ReadAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetMissing(t *testing.T) {
	pool, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer pool.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE m.id = ?`)).
		WithArgs(int64(8)).
		WillReturnRows(sqlmock.NewRows(messageColumns))

	_, err = NewRepository(pool).Get(context.Background(), 8)
	assert.ErrorIs(t, err, ErrMessageNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
