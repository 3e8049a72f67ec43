package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository defines data access methods for users.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user User, passwordHash string) (User, error)
	Update(ctx context.Context, user User) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	RoleExists(ctx context.Context, roleID int64) (bool, error)
	ActiveIDsByRoles(ctx context.Context, roles []string) ([]int64, error)
}

type repository struct {
	pool *sql.DB
	now  func() time.Time
}

// NewRepository constructs the MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool, now: time.Now}
}

const userColumns = `u.id, u.name, u.email, u.role_id, r.name, u.is_active, u.last_login_at, u.created_at, u.updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.RoleID, &u.Role, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// List uses a dynamic query because of the optional filters.
func (r *repository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.RoleID != nil {
		where += ` AND u.role_id = ?`
		args = append(args, *filters.RoleID)
	}
	if filters.IsActive != nil {
		where += ` AND u.is_active = ?`
		args = append(args, *filters.IsActive)
	}
	if filters.Search != "" {
		where += ` AND (u.name LIKE ? OR u.email LIKE ?)`
		like := "%" + search.EscapeLike(filters.Search) + "%"
		args = append(args, like, like)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + userColumns + ` FROM users u JOIN roles r ON r.id = u.role_id` + where +
		` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filters.Limit, filters.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (User, error) {
	row := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u JOIN roles r ON r.id = u.role_id WHERE u.id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}

func (r *repository) Create(ctx context.Context, user User, passwordHash string) (User, error) {
	now := r.now().UTC()
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO users (name, email, password_hash, role_id, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, passwordHash, user.RoleID, user.IsActive, now, now)
	if err != nil {
		if db.IsDuplicate(err) {
			return User{}, ErrEmailTaken
		}
		if db.IsForeignKeyViolation(err) {
			return User{}, ErrUnknownRole
		}
		return User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, err
	}
	return r.Get(ctx, id)
}

func (r *repository) Update(ctx context.Context, user User) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, role_id = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		user.Name, user.Email, user.RoleID, user.IsActive, r.now().UTC(), user.ID)
	if err != nil {
		if db.IsDuplicate(err) {
			return ErrEmailTaken
		}
		if db.IsForeignKeyViolation(err) {
			return ErrUnknownRole
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, passwordHash, r.now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) RoleExists(ctx context.Context, roleID int64) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM roles WHERE id = ?)`, roleID).Scan(&exists)
	return exists, err
}

func (r *repository) ActiveIDsByRoles(ctx context.Context, roles []string) ([]int64, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roles)), ",")
	args := make([]any, len(roles))
	for i, role := range roles {
		args[i] = role
	}
	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx,
		`SELECT u.id FROM users u JOIN roles r ON r.id = u.role_id WHERE u.is_active = 1 AND r.name IN (`+placeholders+`) ORDER BY u.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "email":
		return "u.email " + dir
	case "created_at":
		return "u.created_at " + dir
	case "last_login_at":
		return "u.last_login_at " + dir
	default:
		return "u.name " + dir
	}
}
