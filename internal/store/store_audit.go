package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
)

// insertAuditEntry writes one append-only audit row inside an existing
// tenant session so composite operations record their trail atomically.
func insertAuditEntry(ctx context.Context, sess Session, entry *models.AuditLogEntry) error {
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO audit_log (id, tenant_id, actor, action, resource_type, resource_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := sess.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.Actor,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		entry.Details,
		entry.CreatedAt,
	)
	return err
}

func (s *Store) InsertAuditEntry(ctx context.Context, entry *models.AuditLogEntry) error {
	return s.WithTenant(ctx, entry.TenantID, func(sess Session) error {
		return insertAuditEntry(ctx, sess, entry)
	})
}

func (s *Store) ListAuditEntries(ctx context.Context, tenantID string, limit, offset int) ([]models.AuditLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	var entries []models.AuditLogEntry
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			SELECT * FROM audit_log WHERE tenant_id = $1
			ORDER BY created_at DESC LIMIT $2 OFFSET $3
		`
		return sess.SelectContext(ctx, &entries, query, tenantID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
