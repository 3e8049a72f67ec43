package notifications

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository persists notifications.
type Repository interface {
	Insert(ctx context.Context, userIDs []int64, in Input, at time.Time) ([]Notification, error)
	List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, int, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64, at time.Time) error
	MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error)
}

type repository struct {
	pool *sql.DB
}

// NewRepository returns the MySQL backed Repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

// Insert writes one row per user in a single statement. MySQL hands out
// consecutive ids for a multi-row insert, starting at LastInsertId.
func (r *repository) Insert(ctx context.Context, userIDs []int64, in Input, at time.Time) ([]Notification, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	values := make([]string, 0, len(userIDs))
	args := make([]any, 0, len(userIDs)*6)
	for _, uid := range userIDs {
		values = append(values, "(?, ?, ?, ?, ?, ?)")
		args = append(args, uid, in.Type, in.Title, in.Body, in.Link, at)
	}
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, link, created_at) VALUES `+strings.Join(values, ", "), args...)
	if err != nil {
		return nil, err
	}
	first, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := make([]Notification, len(userIDs))
	for i, uid := range userIDs {
		out[i] = Notification{
			ID:        first + int64(i),
			UserID:    uid,
			Type:      in.Type,
			Title:     in.Title,
			Body:      in.Body,
			Link:      in.Link,
			CreatedAt: at,
		}
	}
	return out, nil
}

func (r *repository) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, int, error) {
	where := ` WHERE user_id = ?`
	args := []any{userID}
	if filter.UnreadOnly {
		where += ` AND read_at IS NULL`
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, user_id, type, title, body, link, read_at, created_at FROM notifications` + where +
		` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Notification{}
	for rows.Next() {
		var (
			n      Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Link, &readAt, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		list = append(list, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *repository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`, userID).Scan(&n)
	return n, err
}

// MarkRead is idempotent for an already read notification of the user.
func (r *repository) MarkRead(ctx context.Context, userID, id int64, at time.Time) error {
	conn := db.Conn(ctx, r.pool)
	if _, err := conn.ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE id = ? AND user_id = ? AND read_at IS NULL`, at, id, userID); err != nil {
		return err
	}
	var exists bool
	if err := conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notifications WHERE id = ? AND user_id = ?)`, id, userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *repository) MarkAllRead(ctx context.Context, userID int64, at time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`, at, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
