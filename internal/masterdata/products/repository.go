package products

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository defines data access for products.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	Update(ctx context.Context, p Product) error
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

const columns = `id, sku, name, description, unit, price, cost, reorder_level, is_active, created_at, updated_at`

func scan(row interface{ Scan(...any) error }) (Product, error) {
	var (
		p    Product
		desc sql.NullString
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &desc, &p.Unit, &p.Price, &p.Cost, &p.ReorderLevel, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Description = desc.String
	return p, nil
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		where += ` AND (name LIKE ? OR sku LIKE ?)`
		like := "%" + search.EscapeLike(filters.Search) + "%"
		args = append(args, like, like)
	}
	if filters.IsActive != nil {
		where += ` AND is_active = ?`
		args = append(args, *filters.IsActive)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + columns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Product{}
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, p)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scan(db.Conn(ctx, r.pool).QueryRowContext(ctx, `SELECT `+columns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	now := r.now().UTC()
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO products (sku, name, description, unit, price, cost, reorder_level, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.SKU, p.Name, p.Description, p.Unit, p.Price, p.Cost, p.ReorderLevel, p.IsActive, now, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return Product{}, ErrSKUTaken
		}
		return Product{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Product{}, err
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *repository) Update(ctx context.Context, p Product) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE products SET sku = ?, name = ?, description = ?, unit = ?, price = ?, cost = ?, reorder_level = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		p.SKU, p.Name, p.Description, p.Unit, p.Price, p.Cost, p.ReorderLevel, p.IsActive, r.now().UTC(), p.ID)
	if err != nil {
		if db.IsDuplicate(err) {
			return ErrSKUTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrProductInUse
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "sku":
		return "sku " + dir
	case "price":
		return "price " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "name " + dir
	}
}
