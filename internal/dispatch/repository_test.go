package dispatch

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depotline/depot/internal/inventory"
)

var day = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

func TestNextNumber(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := NewRepository(conn)
	query := regexp.QuoteMeta(`SELECT dispatch_number FROM dispatches WHERE dispatch_number LIKE ? ORDER BY dispatch_number DESC LIMIT 1 FOR UPDATE`)

	mock.ExpectQuery(query).WithArgs("DSP-20261019-%").
		WillReturnRows(sqlmock.NewRows([]string{"dispatch_number"}))
	number, err := repo.NextNumber(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "DSP-20261019-0001", number)

	mock.ExpectQuery(query).WithArgs("DSP-20261019-%").
		WillReturnRows(sqlmock.NewRows([]string{"dispatch_number"}).AddRow("DSP-20261019-0041"))
	number, err = repo.NextNumber(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "DSP-20261019-0042", number)

	mock.ExpectQuery(query).WithArgs("DSP-20261019-%").
		WillReturnRows(sqlmock.NewRows([]string{"dispatch_number"}).AddRow("DSP-20261019-X"))
	_, err = repo.NextNumber(context.Background(), day)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateNumber(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatches`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	d := &Dispatch{Number: "DSP-20261019-0001", WarehouseID: 1, Status: StatusPending, CreatedAt: day, UpdatedAt: day}
	err = NewRepository(conn).Insert(context.Background(), d, "")
	assert.ErrorIs(t, err, ErrNumberTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDuplicateRequestKeyReplays(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatches`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'k1' for key 'dispatches.uq_dispatches_request'"})
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatches`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'DSP-20261019-0001' for key 'dispatches.uq_dispatches_number'"})

	repo := NewRepository(conn)
	d := &Dispatch{Number: "DSP-20261019-0001", WarehouseID: 1, Status: StatusPending, CreatedAt: day, UpdatedAt: day}
	err = repo.Insert(context.Background(), d, "k1")
	assert.ErrorIs(t, err, errReplayed)
	assert.NotErrorIs(t, err, ErrNumberTaken)

	err = repo.Insert(context.Background(), d, "k2")
	assert.ErrorIs(t, err, ErrNumberTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGuardsCurrentStatus(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	repo := NewRepository(conn)
	tracking := "JNE-1"

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE dispatches SET status = ?, updated_at = ?, dispatched_at = ?, tracking_number = ? WHERE id = ? AND status = ?`)).
		WithArgs("DISPATCHED", day, day, tracking, int64(3), "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), 3, StatusChange{From: StatusPending, To: StatusDispatched, TrackingNumber: &tracking, At: day}))

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE dispatches SET status = ?, updated_at = ?, cancelled_at = ?, cancel_reason = ? WHERE id = ? AND status = ?`)).
		WithArgs("CANCELLED", day, day, "late", int64(3), "DELIVERED").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), 3, StatusChange{From: StatusDelivered, To: StatusCancelled, Reason: "late", At: day})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProductsEscapesWildcards(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN inventory i ON i.product_id = p.id AND i.warehouse_id = ?`)).
		WithArgs(int64(1), `%50\%%`, `%50\%%`, `50\%%`, int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sku", "name", "unit", "price", "quantity"}).
			AddRow(5, "DISC-50%", "Discount tag", "pcs", "1500.00", 8))

	options, err := NewRepository(conn).SearchProducts(context.Background(), ProductQuery{Text: "50%", WarehouseID: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, int64(8), options[0].Available)
	assert.Equal(t, "1500", options[0].Price.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

// A short line found under lock rolls back the dispatch header, its lines and
// the stock already issued for other lines, all in one transaction.
func TestCreateRollsBackWholeTransactionOnShortage(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	balanceCols := []string{"quantity", "avg_cost", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT dispatch_number FROM dispatches`)).
		WithArgs("DSP-20261019-%").
		WillReturnRows(sqlmock.NewRows([]string{"dispatch_number"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatches`)).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatch_lines`)).
		WithArgs(int64(41), int64(9), int64(3), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO dispatch_lines`)).
		WithArgs(int64(41), int64(5), int64(4), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	// product 5 sorts first and is issued
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(1), int64(5)).
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(10, "1000.0000", day))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO inventory_movements`)).
		WillReturnResult(sqlmock.NewResult(70, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO inventory (warehouse_id`)).
		WithArgs(int64(1), int64(5), int64(6), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	// product 9 is short
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs(int64(1), int64(9)).
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(1, "300.0000", day))
	mock.ExpectRollback()

	stock := inventory.NewService(inventory.NewRepository(conn), nil, nil, inventory.ServiceConfig{}, nil)
	svc := NewService(NewRepository(conn), stock, newFakeCatalog(), Options{}, nil)
	svc.now = func() time.Time { return day }

	_, _, err = svc.Create(context.Background(), validInput(
		LineInput{ProductID: 9, Quantity: 3},
		LineInput{ProductID: 5, Quantity: 4},
	), "")
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Lines, 2)
	assert.Equal(t, inventory.Availability{ProductID: 9, Requested: 3, Available: 1, Shortfall: 2}, shortage.Lines[0])
	assert.Equal(t, inventory.Availability{ProductID: 5, Requested: 4, Available: 10, Sufficient: true}, shortage.Lines[1])
	require.NoError(t, mock.ExpectationsWereMet())
}
