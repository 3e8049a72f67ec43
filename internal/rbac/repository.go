package rbac

import (
	"context"
	"database/sql"
	"strings"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository reads permission data from MySQL.
type Repository interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermissions(ctx context.Context, names []string) (int, error)
	RolePermissions(ctx context.Context, role string) ([]string, error)
	ListRoleNames(ctx context.Context) ([]string, error)
}

type repository struct {
	pool *sql.DB
}

// NewRepository constructs the MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx,
		`SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpsertPermissions inserts missing permission rows and returns how many were new.
func (r *repository) UpsertPermissions(ctx context.Context, names []string) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, name := range names {
			res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
				`INSERT INTO permissions (name, description) VALUES (?, ?) ON DUPLICATE KEY UPDATE name = name`,
				name, describePermission(name))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 1 {
				inserted++
			}
		}
		return nil
	})
	return inserted, err
}

func (r *repository) RolePermissions(ctx context.Context, role string) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN roles r ON r.id = rp.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE r.name = ?
		ORDER BY p.name`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (r *repository) ListRoleNames(ctx context.Context) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, `SELECT name FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// describePermission turns "inventory.export" into "Inventory export".
func describePermission(name string) string {
	text := strings.ReplaceAll(name, ".", " ")
	text = strings.ReplaceAll(text, "_", " ")
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
