package dashboard

import (
	"context"
	"database/sql"
	"time"
)

// Repository runs the dashboard aggregate queries.
type Repository interface {
	CountProducts(ctx context.Context) (int, error)
	CountWarehouses(ctx context.Context) (int, error)
	UnitsOnHand(ctx context.Context) (int64, error)
	CountLowStock(ctx context.Context) (int, error)
	DispatchesByStatus(ctx context.Context) (map[string]int, error)
	DispatchesCreatedSince(ctx context.Context, since time.Time) (int, error)
	RecentDispatches(ctx context.Context, limit int) ([]RecentDispatch, error)
}

type repository struct {
	pool *sql.DB
}

// NewRepository returns the MySQL backed Repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

func (r *repository) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	err := r.pool.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *repository) CountProducts(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM products WHERE is_active = 1`)
}

func (r *repository) CountWarehouses(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM warehouses WHERE is_active = 1`)
}

func (r *repository) UnitsOnHand(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRowContext(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory`).Scan(&n)
	return n, err
}

func (r *repository) CountLowStock(ctx context.Context) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM inventory i
JOIN products p ON p.id = i.product_id
WHERE p.is_active = 1 AND i.quantity <= p.reorder_level`)
}

func (r *repository) DispatchesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.QueryContext(ctx, `SELECT status, COUNT(*) FROM dispatches GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (r *repository) DispatchesCreatedSince(ctx context.Context, since time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM dispatches WHERE created_at >= ?`, since)
}

func (r *repository) RecentDispatches(ctx context.Context, limit int) ([]RecentDispatch, error) {
	rows, err := r.pool.QueryContext(ctx, `SELECT d.id, d.dispatch_number, w.code, d.recipient_name, d.status, d.total_quantity, d.created_at
FROM dispatches d
JOIN warehouses w ON w.id = d.warehouse_id
ORDER BY d.created_at DESC, d.id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []RecentDispatch{}
	for rows.Next() {
		var d RecentDispatch
		if err := rows.Scan(&d.ID, &d.Number, &d.WarehouseCode, &d.RecipientName, &d.Status, &d.TotalQuantity, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}
