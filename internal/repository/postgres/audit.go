package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bhadresh-123/phicore/internal/model"
	"github.com/bhadresh-123/phicore/internal/repository"
)

type auditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository returns the append-only audit store. The SQL surface
// is insert-and-select plus the retention expunge; there is no UPDATE and
// no unconditional DELETE.
func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditLogEntry) error {
	query := `
        INSERT INTO audit_log_entries (
            id, actor_id, organization_id, action, resource_type, resource_id,
            fields_accessed, phi_field_count, security_level, risk_score,
            compliant, success, denial_reason, request_meta,
            created_at, retention_expires_at
        ) VALUES (
            :id, :actor_id, :organization_id, :action, :resource_type, :resource_id,
            :fields_accessed, :phi_field_count, :security_level, :risk_score,
            :compliant, :success, :denial_reason, :request_meta,
            :created_at, :retention_expires_at
        )
    `
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters map[string]interface{}) ([]*model.AuditLogEntry, error) {
	query := `SELECT * FROM audit_log_entries WHERE 1=1`
	var args []interface{}

	if v, ok := filters["actor_id"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if v, ok := filters["organization_id"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND organization_id = $%d", len(args))
	}
	if v, ok := filters["resource_id"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND resource_id = $%d", len(args))
	}
	if v, ok := filters["action"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if v, ok := filters["start_date"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if v, ok := filters["end_date"]; ok {
		args = append(args, v)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	var entries []*model.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

// ExpungeExpired removes only entries whose retention window has closed.
func (r *auditRepository) ExpungeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
        DELETE FROM audit_log_entries
        WHERE retention_expires_at <= $1
    `
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expunge expired audit entries: %w", err)
	}
	return result.RowsAffected()
}
