package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error
	CreateSession(ctx context.Context, rec SessionRecord) error
}

type repository struct {
	pool *sql.DB
}

// NewRepository constructs a MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

const authUserSelect = `
	SELECT u.id, u.name, u.email, r.name, u.password_hash, u.is_active, u.last_login_at
	FROM users u JOIN roles r ON r.id = u.role_id`

func (r *repository) scan(row *sql.Row) (*User, error) {
	var (
		u         User
		lastLogin sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.PasswordHash, &u.IsActive, &lastLogin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// FindByEmail fetches a user by email.
func (r *repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRowContext(ctx, authUserSelect+` WHERE u.email = ?`, email))
}

// FindByID fetches a user by id.
func (r *repository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scan(db.Conn(ctx, r.pool).QueryRowContext(ctx, authUserSelect+` WHERE u.id = ?`, id))
}

// TouchLastLogin records the time of a successful login.
func (r *repository) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	return err
}

// CreateSession persists issued token metadata for auditing.
func (r *repository) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO user_sessions (id, user_id, created_at, expires_at, ip, user_agent) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, time.Now().UTC(), rec.ExpiresAt.UTC(), nullString(rec.IP), nullString(rec.UserAgent))
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
