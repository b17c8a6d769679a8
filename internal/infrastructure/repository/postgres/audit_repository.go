package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// AuditRepository reads audit_logs. Rows are only written by DocumentRepository,
// inside the transaction of the change they describe.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, action, details, actor, created_at
FROM audit_logs
WHERE document_id = $1
ORDER BY created_at ASC, seq ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var entry domain.AuditEntry
		var action string
		if err := rows.Scan(&entry.ID, &entry.DocumentID, &action, &entry.Details, &entry.Actor, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entry.Action = domain.AuditAction(action)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return out, nil
}

func insertAudit(ctx context.Context, q queryer, entry domain.AuditEntry) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO audit_logs (id, document_id, action, details, actor, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.ID, entry.DocumentID, string(entry.Action), entry.Details, entry.Actor, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
