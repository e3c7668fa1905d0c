package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
)

// CreateScanRecord inserts the queued record for a scan request. The scan
// id comes from the caller: it is the same identifier carried by the queue
// message.
func (s *Store) CreateScanRecord(ctx context.Context, rec *models.ScanRecord) error {
	now := time.Now()
	rec.StartedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = models.ScanStatusQueued
	}

	return s.WithTenant(ctx, rec.TenantID, func(sess Session) error {
		query := `
			INSERT INTO scan_records (scan_id, tenant_id, cloud_account_id, status, started_at, volumes_found, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		_, err := sess.ExecContext(ctx, query,
			rec.ScanID,
			rec.TenantID,
			rec.CloudAccountID,
			rec.Status,
			rec.StartedAt,
			rec.VolumesFound,
			rec.UpdatedAt,
		)
		return err
	})
}

// ClaimScanInProgress moves a scan from queued to in-progress. The
// transition is a compare-and-set so a redelivered message cannot claim a
// scan twice: false means the record was already claimed or finished.
func (s *Store) ClaimScanInProgress(ctx context.Context, tenantID string, scanID uuid.UUID) (bool, error) {
	claimed := false
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			UPDATE scan_records SET status = $1, updated_at = $2
			WHERE tenant_id = $3 AND scan_id = $4 AND status = $5
		`
		res, err := sess.ExecContext(ctx, query,
			models.ScanStatusInProgress, time.Now(), tenantID, scanID, models.ScanStatusQueued)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		claimed = n == 1
		return nil
	})
	return claimed, err
}

// CompleteScanRecord marks an in-progress scan completed with its aggregate
// metrics. Per-region errors are informational and do not affect the
// status.
func (s *Store) CompleteScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID, volumesFound int, regionErrors []string) error {
	return s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			UPDATE scan_records
			SET status = $1, completed_at = $2, volumes_found = $3, errors = $4, updated_at = $2
			WHERE tenant_id = $5 AND scan_id = $6 AND status = $7
		`
		res, err := sess.ExecContext(ctx, query,
			models.ScanStatusCompleted, time.Now(), volumesFound,
			models.StringArray(regionErrors), tenantID, scanID, models.ScanStatusInProgress)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrScanNotActive
		}
		return nil
	})
}

// FailScanRecord marks a scan failed from either non-terminal status.
// Validation rejections fail a scan before it was ever claimed, so queued
// is a legal source state here.
func (s *Store) FailScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID, message string) error {
	return s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			UPDATE scan_records
			SET status = $1, completed_at = $2, error_message = $3, updated_at = $2
			WHERE tenant_id = $4 AND scan_id = $5 AND status = ANY($6)
		`
		res, err := sess.ExecContext(ctx, query,
			models.ScanStatusFailed, time.Now(), message, tenantID, scanID,
			models.StringArray{string(models.ScanStatusQueued), string(models.ScanStatusInProgress)})
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrScanNotActive
		}
		return nil
	})
}

// GetScanRecord returns one scan record. Returns (nil, nil) when absent.
func (s *Store) GetScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	found := false
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `SELECT * FROM scan_records WHERE tenant_id = $1 AND scan_id = $2`
		err := sess.GetContext(ctx, &rec, query, tenantID, scanID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) ListScanRecords(ctx context.Context, tenantID string, limit, offset int) ([]models.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []models.ScanRecord
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			SELECT * FROM scan_records WHERE tenant_id = $1
			ORDER BY started_at DESC LIMIT $2 OFFSET $3
		`
		return sess.SelectContext(ctx, &records, query, tenantID, limit, offset)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
