package services

import (
	"context"
	"strings"
	"time"

	"github.com/isdelr/lab-portal/internal/database"
	"github.com/isdelr/lab-portal/internal/models"
)

// AuditPublisher receives audit entries once they are committed.
type AuditPublisher interface {
	PublishAudit(entry models.AuditEntry)
}

type nopPublisher struct{}

func (nopPublisher) PublishAudit(models.AuditEntry) {}

// AuditLog is the append-only audit trail. Nothing in the portal updates or
// deletes its rows.
type AuditLog struct {
	db  database.DBTX
	now func() time.Time
}

// NewAuditLog creates an AuditLog.
func NewAuditLog(db database.DBTX) *AuditLog {
	return &AuditLog{db: db, now: time.Now}
}

// Append records one event. The write is synchronous; an error here must fail
// the operation that triggered it.
func (l *AuditLog) Append(ctx context.Context, actorLabel string, action models.AuditAction, sourceIP string) (models.AuditEntry, error) {
	entry := models.AuditEntry{
		ActorLabel: actorLabel,
		Action:     action,
		SourceIP:   sourceIP,
		CreatedAt:  l.now().UTC().Truncate(time.Millisecond),
	}

	res, err := l.db.ExecContext(ctx,
		"INSERT INTO audit_logs (actor_label, action, source_ip, created_at) VALUES (?, ?, ?, ?)",
		entry.ActorLabel, entry.Action, entry.SourceIP, entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return models.AuditEntry{}, storeErr("append audit entry", err)
	}
	if entry.ID, err = res.LastInsertId(); err != nil {
		return models.AuditEntry{}, storeErr("audit entry id", err)
	}
	return entry, nil
}

// Query returns entries newest first, filtered by actor and action substrings.
func (l *AuditLog) Query(ctx context.Context, f models.AuditFilter) ([]models.AuditEntry, error) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("SELECT id, actor_label, action, source_ip, created_at FROM audit_logs WHERE 1=1")
	// instr() keeps % and _ in user input literal
	if f.Actor != "" {
		b.WriteString(" AND instr(actor_label, ?) > 0")
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		b.WriteString(" AND instr(action, ?) > 0")
		args = append(args, f.Action)
	}
	b.WriteString(" ORDER BY id DESC")
	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}

	rows, err := l.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, storeErr("query audit log", err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var (
			e         models.AuditEntry
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ActorLabel, &e.Action, &e.SourceIP, &createdAt); err != nil {
			return nil, storeErr("scan audit entry", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("query audit log", err)
	}
	return entries, nil
}

// Count returns the number of entries in the trail.
func (l *AuditLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&n); err != nil {
		return 0, storeErr("count audit log", err)
	}
	return n, nil
}
