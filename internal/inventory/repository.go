package inventory

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository persists inventory data in MySQL.
type Repository struct {
	pool *sql.DB
}

// NewRepository constructs Repository.
func NewRepository(pool *sql.DB) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type txRepo struct {
	pool *sql.DB
}

// WithTx executes the callback inside a repeatable-read transaction. When ctx
// already carries one (a dispatch being created) the movement joins it.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		return fn(ctx, &txRepo{pool: r.pool})
	})
}

func (r *txRepo) GetBalanceForUpdate(ctx context.Context, warehouseID, productID int64) (Balance, error) {
	b := Balance{WarehouseID: warehouseID, ProductID: productID}
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT quantity, avg_cost, updated_at FROM inventory WHERE warehouse_id = ? AND product_id = ? FOR UPDATE`,
		warehouseID, productID).Scan(&b.Quantity, &b.AvgCost, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrBalanceNotFound
	}
	return b, err
}

func (r *txRepo) UpsertBalance(ctx context.Context, b Balance) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO inventory (warehouse_id, product_id, quantity, avg_cost, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE quantity = VALUES(quantity), avg_cost = VALUES(avg_cost), updated_at = VALUES(updated_at)`,
		b.WarehouseID, b.ProductID, b.Quantity, b.AvgCost, time.Now().UTC())
	if db.IsForeignKeyViolation(err) {
		return ErrUnknownReference
	}
	return err
}

func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO inventory_movements
		 (code, movement_type, warehouse_id, product_id, qty_in, qty_out, balance_qty, unit_cost, avg_cost, ref_module, ref_id, note, created_by, posted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Code, string(m.Type), m.WarehouseID, m.ProductID, m.QtyIn, m.QtyOut, m.BalanceQty, m.UnitCost, m.AvgCost,
		nullString(m.RefModule), nullString(m.RefID), nullString(m.Note), nullInt(m.CreatedBy), m.PostedAt)
	if err != nil {
		switch {
		case db.IsDuplicateKey(err, "uq_movements_code"):
			return 0, ErrDuplicateMovement
		case db.IsForeignKeyViolation(err):
			return 0, ErrUnknownReference
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetStockCard lists ledger entries of one warehouse and product in posting order.
func (r *Repository) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	query := `SELECT code, movement_type, posted_at, qty_in, qty_out, balance_qty, unit_cost, avg_cost, ref_module, ref_id, note
		FROM inventory_movements WHERE warehouse_id = ? AND product_id = ?`
	args := []any{filter.WarehouseID, filter.ProductID}
	if !filter.From.IsZero() {
		query += ` AND posted_at >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND posted_at <= ?`
		args = append(args, filter.To)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	query += ` ORDER BY posted_at, id LIMIT ?`
	args = append(args, limit)

	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := []StockCardEntry{}
	for rows.Next() {
		var (
			e                      StockCardEntry
			typ                    string
			refModule, refID, note sql.NullString
		)
		if err := rows.Scan(&e.Code, &typ, &e.PostedAt, &e.QtyIn, &e.QtyOut, &e.BalanceQty, &e.UnitCost, &e.AvgCost, &refModule, &refID, &note); err != nil {
			return nil, err
		}
		e.Type = MovementType(typ)
		e.RefModule = refModule.String
		e.RefID = refID.String
		e.Note = note.String
		cards = append(cards, e)
	}
	return cards, rows.Err()
}

const stockColumns = `i.warehouse_id, w.code, w.name, i.product_id, p.sku, p.name, p.unit, i.quantity, i.avg_cost, p.reorder_level, i.updated_at`

const stockJoins = ` FROM inventory i JOIN warehouses w ON w.id = i.warehouse_id JOIN products p ON p.id = i.product_id`

// ListStock returns a page of balances joined with product and warehouse data.
func (r *Repository) ListStock(ctx context.Context, filter StockFilter) ([]StockItem, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.WarehouseID != nil {
		where += ` AND i.warehouse_id = ?`
		args = append(args, *filter.WarehouseID)
	}
	if filter.ProductID != nil {
		where += ` AND i.product_id = ?`
		args = append(args, *filter.ProductID)
	}
	if filter.Search != "" {
		where += ` AND (p.name LIKE ? OR p.sku LIKE ?)`
		like := "%" + search.EscapeLike(filter.Search) + "%"
		args = append(args, like, like)
	}
	if filter.IsActive != nil {
		where += ` AND p.is_active = ?`
		args = append(args, *filter.IsActive)
	}
	if filter.LowOnly {
		where += ` AND i.quantity <= p.reorder_level`
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*)`+stockJoins+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + stockColumns + stockJoins + where + ` ORDER BY ` + stockOrder(filter.SortBy, filter.SortDir)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []StockItem{}
	for rows.Next() {
		var it StockItem
		if err := rows.Scan(&it.WarehouseID, &it.WarehouseCode, &it.WarehouseName, &it.ProductID, &it.SKU, &it.ProductName,
			&it.Unit, &it.Quantity, &it.AvgCost, &it.ReorderLevel, &it.UpdatedAt); err != nil {
			return nil, 0, err
		}
		it.LowStock = it.Quantity <= it.ReorderLevel
		items = append(items, it)
	}
	return items, total, rows.Err()
}

// AvailableQuantity returns the unlocked on-hand quantity, zero when no row exists.
func (r *Repository) AvailableQuantity(ctx context.Context, warehouseID, productID int64) (int64, error) {
	var qty int64
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE warehouse_id = ? AND product_id = ?`, warehouseID, productID).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func stockOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "quantity":
		return "i.quantity " + dir + ", p.name"
	case "sku":
		return "p.sku " + dir
	case "warehouse":
		return "w.code " + dir + ", p.name"
	case "updated_at":
		return "i.updated_at " + dir
	default:
		return "p.name " + dir + ", w.code"
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}
