package warehouses

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository defines data access for warehouses.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	ListActive(ctx context.Context) ([]Warehouse, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	Create(ctx context.Context, w Warehouse) (Warehouse, error)
	Update(ctx context.Context, w Warehouse) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *sql.DB
	now  func() time.Time
}

// NewRepository constructs the MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool, now: time.Now}
}

const columns = `id, code, name, address, is_active, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Warehouse, error) {
	var (
		w       Warehouse
		address sql.NullString
	)
	if err := row.Scan(&w.ID, &w.Code, &w.Name, &address, &w.IsActive, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return Warehouse{}, err
	}
	w.Address = address.String
	return w, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		where += ` AND (name LIKE ? OR code LIKE ?)`
		like := "%" + search.EscapeLike(filters.Search) + "%"
		args = append(args, like, like)
	}
	if filters.IsActive != nil {
		where += ` AND is_active = ?`
		args = append(args, *filters.IsActive)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM warehouses`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM warehouses` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filters.Limit, filters.Offset())
	}
	list, err := r.query(ctx, query, args...)
	return list, total, err
}

func (r *repository) ListActive(ctx context.Context) ([]Warehouse, error) {
	return r.query(ctx, `SELECT `+columns+` FROM warehouses WHERE is_active = 1 ORDER BY name`)
}

func (r *repository) query(ctx context.Context, query string, args ...any) ([]Warehouse, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []Warehouse{}
	for rows.Next() {
		w, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	w, err := scan(db.Conn(ctx, r.pool).QueryRowContext(ctx, `SELECT `+columns+` FROM warehouses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, err
}

func (r *repository) Create(ctx context.Context, w Warehouse) (Warehouse, error) {
	now := r.now().UTC()
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO warehouses (code, name, address, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.Code, w.Name, w.Address, w.IsActive, now, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return Warehouse{}, ErrCodeTaken
		}
		return Warehouse{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Warehouse{}, err
	}
	w.ID = id
	w.CreatedAt = now
	w.UpdatedAt = now
	return w, nil
}

func (r *repository) Update(ctx context.Context, w Warehouse) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE warehouses SET code = ?, name = ?, address = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		w.Code, w.Name, w.Address, w.IsActive, r.now().UTC(), w.ID)
	if err != nil {
		if db.IsDuplicate(err) {
			return ErrCodeTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx, `DELETE FROM warehouses WHERE id = ?`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrWarehouseInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWarehouseNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
