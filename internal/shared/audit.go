package shared

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one row of audit_logs. Entity names the table the action touched.
type AuditLog struct {
	ActorID  uuid.UUID
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger appends to audit_logs.
type AuditLogger struct {
	db  Execer
	now func() time.Time
}

// NewAuditLogger returns a logger writing through db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db, now: time.Now}
}

var errAuditIncomplete = NewError(KindValidation, "audit_incomplete", "Audit entries need an action, entity and entity id")

const insertAudit = `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6)`

// Record writes entry outside any caller transaction.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.RecordWith(ctx, l.db, entry)
}

// RecordWith writes entry through q, typically an open transaction, so the
// audit row commits or rolls back with the change it describes.
func (l *AuditLogger) RecordWith(ctx context.Context, q Execer, entry AuditLog) error {
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errAuditIncomplete
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	at := entry.At
	if at.IsZero() {
		at = l.now()
	}
	var actor *uuid.UUID
	if entry.ActorID != uuid.Nil {
		actor = &entry.ActorID
	}
	if _, err := q.Exec(ctx, insertAudit, actor, entry.Action, entry.Entity, entry.EntityID, meta, at.UTC()); err != nil {
		return Dependency(err)
	}
	return nil
}
