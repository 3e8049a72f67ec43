package messages

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
	"github.com/depotline/depot/internal/search"
)

// Repository persists messages.
type Repository interface {
	Insert(ctx context.Context, senderID int64, in SendInput, at time.Time) (int64, error)
	Get(ctx context.Context, id int64) (Message, error)
	List(ctx context.Context, userID int64, filter ListFilter) ([]Message, int, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
}

type repository struct {
	pool *sql.DB
}

// NewRepository returns the MySQL backed Repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

const selectMessage = `SELECT m.id, m.sender_id, COALESCE(s.name, ''), m.recipient_id, COALESCE(rc.name, ''),
	m.subject, m.body, m.read_at, m.created_at
FROM messages m
LEFT JOIN users s ON s.id = m.sender_id
LEFT JOIN users rc ON rc.id = m.recipient_id`

func scanMessage(row interface{ Scan(...any) error }) (Message, error) {
	var (
		m      Message
		readAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.RecipientName,
		&m.Subject, &m.Body, &readAt, &m.CreatedAt); err != nil {
		return Message{}, err
	}
	if readAt.Valid {
		t := readAt.Time
		m.ReadAt = &t
	}
	return m, nil
}

func (r *repository) Insert(ctx context.Context, senderID int64, in SendInput, at time.Time) (int64, error) {
	res, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`INSERT INTO messages (sender_id, recipient_id, subject, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		senderID, in.RecipientID, in.Subject, in.Body, at)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *repository) Get(ctx context.Context, id int64) (Message, error) {
	m, err := scanMessage(db.Conn(ctx, r.pool).QueryRowContext(ctx, selectMessage+` WHERE m.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrMessageNotFound
	}
	return m, err
}

func (r *repository) List(ctx context.Context, userID int64, filter ListFilter) ([]Message, int, error) {
	where := ` WHERE m.recipient_id = ?`
	if filter.Box == BoxSent {
		where = ` WHERE m.sender_id = ?`
	}
	args := []any{userID}
	if filter.Search != "" {
		like := "%" + search.EscapeLike(filter.Search) + "%"
		where += ` AND (m.subject LIKE ? OR m.body LIKE ?)`
		args = append(args, like, like)
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := selectMessage + where + ` ORDER BY m.created_at DESC, m.id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *repository) MarkRead(ctx context.Context, id int64, at time.Time) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`UPDATE messages SET read_at = ? WHERE id = ? AND read_at IS NULL`, at, id)
	return err
}
