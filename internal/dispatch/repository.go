package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository abstracts dispatch persistence for the service.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	NextNumber(ctx context.Context, day time.Time) (string, error)
	Insert(ctx context.Context, d *Dispatch, requestKey string) error
	Get(ctx context.Context, id int64) (Dispatch, error)
	GetForUpdate(ctx context.Context, id int64) (Dispatch, error)
	FindByRequestKey(ctx context.Context, key string) (Dispatch, error)
	List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error)
	UpdateStatus(ctx context.Context, id int64, change StatusChange) error
	SearchProducts(ctx context.Context, q ProductQuery) ([]ProductOption, error)
}

type repository struct {
	pool *sql.DB
}

// NewRepository returns the MySQL backed Repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

const selectDispatch = `SELECT d.id, d.dispatch_number, d.warehouse_id, w.code, w.name, d.logistics_partner,
	d.tracking_number, d.recipient_name, d.recipient_phone, d.recipient_address, d.notes, d.status,
	d.cancel_reason, d.total_quantity, d.total_value, d.created_by, COALESCE(u.name, ''),
	d.created_at, d.updated_at, d.dispatched_at, d.delivered_at, d.cancelled_at
	FROM dispatches d
	INNER JOIN warehouses w ON w.id = d.warehouse_id
	LEFT JOIN users u ON u.id = d.created_by`

func scanDispatch(row interface{ Scan(...any) error }) (Dispatch, error) {
	var (
		d                                      Dispatch
		status                                 string
		createdBy                              sql.NullInt64
		dispatchedAt, deliveredAt, cancelledAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Number, &d.WarehouseID, &d.WarehouseCode, &d.WarehouseName, &d.LogisticsPartner,
		&d.TrackingNumber, &d.RecipientName, &d.RecipientPhone, &d.RecipientAddress, &d.Notes, &status,
		&d.CancelReason, &d.TotalQuantity, &d.TotalValue, &createdBy, &d.CreatedByName,
		&d.CreatedAt, &d.UpdatedAt, &dispatchedAt, &deliveredAt, &cancelledAt)
	if err != nil {
		return Dispatch{}, err
	}
	d.Status = Status(status)
	d.CreatedBy = createdBy.Int64
	d.DispatchedAt = timePtr(dispatchedAt)
	d.DeliveredAt = timePtr(deliveredAt)
	d.CancelledAt = timePtr(cancelledAt)
	return d, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// WithTx runs fn in a transaction the inventory service joins through ctx.
func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

// NextNumber locks the highest number of day and returns its successor.
func (r *repository) NextNumber(ctx context.Context, day time.Time) (string, error) {
	prefix := FormatNumber(day, 0)
	prefix = prefix[:strings.LastIndex(prefix, "-")+1]
	var last string
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT dispatch_number FROM dispatches WHERE dispatch_number LIKE ? ORDER BY dispatch_number DESC LIMIT 1 FOR UPDATE`,
		prefix+"%").Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return FormatNumber(day, 1), nil
	}
	if err != nil {
		return "", err
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil {
		return "", fmt.Errorf("dispatch: malformed number %q", last)
	}
	return FormatNumber(day, seq+1), nil
}

func (r *repository) Insert(ctx context.Context, d *Dispatch, requestKey string) error {
	conn := db.Conn(ctx, r.pool)
	var key any
	if requestKey != "" {
		key = requestKey
	}
	res, err := conn.ExecContext(ctx,
		`INSERT INTO dispatches (dispatch_number, request_key, warehouse_id, logistics_partner, tracking_number,
		 recipient_name, recipient_phone, recipient_address, notes, status, cancel_reason, total_quantity, total_value,
		 created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?, ?, ?)`,
		d.Number, key, d.WarehouseID, d.LogisticsPartner, d.TrackingNumber,
		d.RecipientName, d.RecipientPhone, d.RecipientAddress, d.Notes, string(d.Status), d.TotalQuantity, d.TotalValue,
		nullID(d.CreatedBy), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		switch {
		case db.IsDuplicateKey(err, "uq_dispatches_request"):
			return errReplayed
		case db.IsDuplicate(err):
			return ErrNumberTaken
		}
		return err
	}
	if d.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	for i := range d.Lines {
		l := &d.Lines[i]
		l.DispatchID = d.ID
		res, err := conn.ExecContext(ctx,
			`INSERT INTO dispatch_lines (dispatch_id, product_id, quantity, unit_price, line_total) VALUES (?, ?, ?, ?, ?)`,
			l.DispatchID, l.ProductID, l.Quantity, l.UnitPrice, l.LineTotal)
		if err != nil {
			return fmt.Errorf("insert dispatch line: %w", err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func nullID(id int64) any {
	if id <= 0 {
		return nil
	}
	return id
}

func (r *repository) Get(ctx context.Context, id int64) (Dispatch, error) {
	return r.get(ctx, selectDispatch+` WHERE d.id = ?`, id)
}

// GetForUpdate locks the dispatch row until the surrounding transaction ends.
func (r *repository) GetForUpdate(ctx context.Context, id int64) (Dispatch, error) {
	return r.get(ctx, selectDispatch+` WHERE d.id = ? FOR UPDATE`, id)
}

func (r *repository) FindByRequestKey(ctx context.Context, key string) (Dispatch, error) {
	return r.get(ctx, selectDispatch+` WHERE d.request_key = ?`, key)
}

func (r *repository) get(ctx context.Context, query string, arg any) (Dispatch, error) {
	d, err := scanDispatch(db.Conn(ctx, r.pool).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Dispatch{}, ErrDispatchNotFound
	}
	if err != nil {
		return Dispatch{}, err
	}
	if d.Lines, err = r.lines(ctx, d.ID); err != nil {
		return Dispatch{}, err
	}
	return d, nil
}

func (r *repository) lines(ctx context.Context, dispatchID int64) ([]Line, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx,
		`SELECT l.id, l.dispatch_id, l.product_id, p.sku, p.name, l.quantity, l.unit_price, l.line_total
		 FROM dispatch_lines l
		 INNER JOIN products p ON p.id = l.product_id
		 WHERE l.dispatch_id = ?
		 ORDER BY l.id`, dispatchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.DispatchID, &l.ProductID, &l.SKU, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Dispatch, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "d.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.WarehouseID != nil {
		conditions = append(conditions, "d.warehouse_id = ?")
		args = append(args, *filter.WarehouseID)
	}
	if filter.From != nil {
		conditions = append(conditions, "d.created_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, "d.created_at <= ?")
		args = append(args, *filter.To)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + search.EscapeLike(s) + "%"
		conditions = append(conditions,
			"(d.dispatch_number LIKE ? OR d.recipient_name LIKE ? OR d.tracking_number LIKE ? OR d.logistics_partner LIKE ?)")
		args = append(args, pattern, pattern, pattern, pattern)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatches d`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := selectDispatch + where + ` ORDER BY ` + sortOrder(filter.SortBy, filter.SortDir)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	dispatches := []Dispatch{}
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, 0, err
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return dispatches, total, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "DESC"
	if strings.EqualFold(sortDir, "asc") {
		dir = "ASC"
	}
	switch sortBy {
	case "dispatch_number":
		return "d.dispatch_number " + dir
	case "status":
		return "d.status " + dir + ", d.id DESC"
	case "recipient_name":
		return "d.recipient_name " + dir + ", d.id DESC"
	default:
		return "d.created_at " + dir + ", d.id " + dir
	}
}

// UpdateStatus applies change only while the dispatch still has change.From.
func (r *repository) UpdateStatus(ctx context.Context, id int64, change StatusChange) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []any{string(change.To), change.At}
	switch change.To {
	case StatusDispatched:
		sets = append(sets, "dispatched_at = ?")
		args = append(args, change.At)
	case StatusDelivered:
		sets = append(sets, "delivered_at = ?")
		args = append(args, change.At)
	case StatusCancelled:
		sets = append(sets, "cancelled_at = ?", "cancel_reason = ?")
		args = append(args, change.At, change.Reason)
	}
	if change.TrackingNumber != nil {
		sets = append(sets, "tracking_number = ?")
		args = append(args, *change.TrackingNumber)
	}
	args = append(args, id, string(change.From))
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE dispatches SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// SearchProducts matches active products by sku or name and reports what
// the warehouse holds of each. SKU prefix matches rank first.
func (r *repository) SearchProducts(ctx context.Context, q ProductQuery) ([]ProductOption, error) {
	text := search.EscapeLike(strings.TrimSpace(q.Text))
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx,
		`SELECT p.id, p.sku, p.name, p.unit, p.price, COALESCE(i.quantity, 0)
		 FROM products p
		 LEFT JOIN inventory i ON i.product_id = p.id AND i.warehouse_id = ?
		 WHERE p.is_active = 1 AND (p.sku LIKE ? OR p.name LIKE ?)
		 ORDER BY CASE WHEN p.sku LIKE ? THEN 0 ELSE 1 END, p.name
		 LIMIT ?`,
		q.WarehouseID, "%"+text+"%", "%"+text+"%", text+"%", q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	options := []ProductOption{}
	for rows.Next() {
		var o ProductOption
		if err := rows.Scan(&o.ID, &o.SKU, &o.Name, &o.Unit, &o.Price, &o.Available); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}
