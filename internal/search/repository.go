package search

import (
	"context"
	"database/sql"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// Repository persists search documents.
type Repository interface {
	Upsert(ctx context.Context, doc Document, content string) error
	Delete(ctx context.Context, entityType EntityType, id int64) error
	Search(ctx context.Context, terms []string, entityType EntityType, limit int) ([]Result, error)
	Replace(ctx context.Context, entityType EntityType, docs []Document, content func(Document) string) error
}

type repository struct {
	pool *sql.DB
	now  func() time.Time
}

// NewRepository constructs the MySQL repository.
func NewRepository(pool *sql.DB) Repository {
	return &repository{pool: pool, now: time.Now}
}

const upsertSQL = `INSERT INTO search_index (entity_type, entity_id, title, subtitle, content, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE title = VALUES(title), subtitle = VALUES(subtitle), content = VALUES(content), updated_at = VALUES(updated_at)`

func (r *repository) Upsert(ctx context.Context, doc Document, content string) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx, upsertSQL,
		string(doc.EntityType), doc.EntityID, doc.Title, doc.Subtitle, content, r.now().UTC())
	return err
}

func (r *repository) Delete(ctx context.Context, entityType EntityType, id int64) error {
	_, err := db.Conn(ctx, r.pool).ExecContext(ctx,
		`DELETE FROM search_index WHERE entity_type = ? AND entity_id = ?`, string(entityType), id)
	return err
}

// Search matches every term as a substring of the normalized content.
func (r *repository) Search(ctx context.Context, terms []string, entityType EntityType, limit int) ([]Result, error) {
	query := `SELECT entity_type, entity_id, title, subtitle, updated_at FROM search_index WHERE 1=1`
	args := []any{}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(entityType))
	}
	for _, term := range terms {
		query += ` AND content LIKE ?`
		args = append(args, "%"+term+"%")
	}
	query += ` ORDER BY CASE WHEN content LIKE ? THEN 0 ELSE 1 END, title LIMIT ?`
	args = append(args, terms[0]+"%", limit)

	rows, err := db.Conn(ctx, r.pool).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var (
			res      Result
			typ      string
			subtitle sql.NullString
		)
		if err := rows.Scan(&typ, &res.EntityID, &res.Title, &subtitle, &res.UpdatedAt); err != nil {
			return nil, err
		}
		res.EntityType = EntityType(typ)
		res.Subtitle = subtitle.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// Replace swaps every document of entityType for docs in one transaction.
func (r *repository) Replace(ctx context.Context, entityType EntityType, docs []Document, content func(Document) string) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, r.pool)
		if _, err := conn.ExecContext(ctx, `DELETE FROM search_index WHERE entity_type = ?`, string(entityType)); err != nil {
			return err
		}
		now := r.now().UTC()
		for _, doc := range docs {
			if _, err := conn.ExecContext(ctx, upsertSQL,
				string(entityType), doc.EntityID, doc.Title, doc.Subtitle, content(doc), now); err != nil {
				return err
			}
		}
		return nil
	})
}
