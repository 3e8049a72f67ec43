package roles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository defines data access methods for roles.
type Repository interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id int64) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) error
	Delete(ctx context.Context, id int64) error
	Permissions(ctx context.Context, id int64) ([]string, error)
	SetPermissions(ctx context.Context, id int64, names []string) error
}

type repository struct {
	pool *sql.DB
	now  func() time.Time
}

// NewRepository constructs the MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool, now: time.Now}
}

const roleSelect = `
	SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at,
		(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id) AS user_count
	FROM roles r`

func scanRole(row interface{ Scan(...any) error }) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt, &r.UserCount)
	return r, err
}

func (r *repository) List(ctx context.Context) ([]Role, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, roleSelect+` ORDER BY r.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := []Role{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(db.Conn(ctx, r.pool).QueryRowContext(ctx, roleSelect+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Role{}, ErrRoleNotFound
	}
	return role, err
}

func (r *repository) Create(ctx context.Context, role Role) (Role, error) {
	now := r.now().UTC()
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO roles (name, description, is_system, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		role.Name, role.Description, role.IsSystem, now, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return Role{}, ErrRoleNameTaken
		}
		return Role{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Role{}, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, role Role) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		role.Name, role.Description, r.now().UTC(), role.ID)
	if err != nil {
		if db.IsDuplicate(err) {
			return ErrRoleNameTaken
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoleNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		if _, err := conn.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, id); err != nil {
			return err
		}
		res, err := conn.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return ErrRoleInUse
			}
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrRoleNotFound
		}
		return nil
	})
}

func (r *repository) Permissions(ctx context.Context, id int64) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, `
		SELECT p.name FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = ?
		ORDER BY p.name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

// SetPermissions replaces the role's assignments inside one transaction.
func (r *repository) SetPermissions(ctx context.Context, id int64, names []string) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		if _, err := conn.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, id); err != nil {
			return err
		}
		for _, name := range names {
			res, err := conn.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) SELECT ?, id FROM permissions WHERE name = ?`, id, name)
			if err != nil {
				if db.IsForeignKeyViolation(err) {
					return ErrRoleNotFound
				}
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: %s", ErrUnknownPermission, name)
			}
		}
		return nil
	})
}
