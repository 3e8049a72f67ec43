package audit

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

type repository struct {
	pool *sql.DB
}

// NewRepository returns the MySQL backed Repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool}
}

func (r *repository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var (
		where []string
		args  []any
	)
	if !filters.From.IsZero() {
		where = append(where, "a.occurred_at >= ?")
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		where = append(where, "a.occurred_at < ?")
		args = append(args, filters.To.AddDate(0, 0, 1))
	}
	if filters.ActorID > 0 {
		where = append(where, "a.actor_id = ?")
		args = append(args, filters.ActorID)
	}
	if filters.Entity != "" {
		where = append(where, "a.entity = ?")
		args = append(args, filters.Entity)
	}
	if filters.EntityID != "" {
		where = append(where, "a.entity_id = ?")
		args = append(args, filters.EntityID)
	}
	if filters.Action != "" {
		where = append(where, "a.action = ?")
		args = append(args, filters.Action)
	}
	query := `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.occurred_at DESC, a.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []TimelineRow{}
	for rows.Next() {
		var (
			row   TimelineRow
			at    time.Time
			actor sql.NullInt64
			meta  []byte
		)
		if err := rows.Scan(&row.ID, &at, &actor, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		row.At = at.UTC()
		row.ActorID = actor.Int64
		if len(meta) > 0 && string(meta) != "null" {
			row.Meta = meta
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
