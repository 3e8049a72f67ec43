package shared

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/depotline/depot/internal/platform/db"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Auditor records audit trail entries.
type Auditor interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into audit_logs. Inside db.WithTx the record
// joins the caller's transaction.
type AuditLogger struct {
	pool *sql.DB
	now  func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *sql.DB) *AuditLogger {
	return &AuditLogger{pool: pool, now: time.Now}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.ActorID == 0 {
		log.ActorID = ActorID(ctx)
	}
	if log.At.IsZero() {
		log.At = l.now().UTC()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var actor sql.NullInt64
	if log.ActorID > 0 {
		actor = sql.NullInt64{Int64: log.ActorID, Valid: true}
	}
	_, err = db.Conn(ctx, l.pool).ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		actor, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}
