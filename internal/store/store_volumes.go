package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
)

// upsertVolume inserts a volume or, on (tenant_id, volume_id) conflict,
// overwrites only the mutable observed fields. Identity fields (ids,
// placement, size, type, encryption, creation time) keep their first
// observed values.
func upsertVolume(ctx context.Context, sess Session, v *models.Volume) error {
	query := `
		INSERT INTO volumes (
			id, tenant_id, cloud_account_id, volume_id, region, availability_zone,
			size_gb, volume_type, state, encrypted, kms_key_id, iops, throughput,
			instance_id, attachment_device, attached_at, cost_per_month, tags,
			volume_created_at, last_scanned_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (tenant_id, volume_id) DO UPDATE SET
			state             = EXCLUDED.state,
			instance_id       = EXCLUDED.instance_id,
			attachment_device = EXCLUDED.attachment_device,
			attached_at       = EXCLUDED.attached_at,
			cost_per_month    = EXCLUDED.cost_per_month,
			tags              = EXCLUDED.tags,
			last_scanned_at   = EXCLUDED.last_scanned_at,
			updated_at        = EXCLUDED.updated_at
	`
	v.ID = uuid.New()
	now := time.Now()
	v.LastScannedAt = now
	v.CreatedAt = now
	v.UpdatedAt = now

	_, err := sess.ExecContext(ctx, query,
		v.ID,
		v.TenantID,
		v.CloudAccountID,
		v.VolumeID,
		v.Region,
		v.AvailabilityZone,
		v.SizeGB,
		v.VolumeType,
		v.State,
		v.Encrypted,
		v.KMSKeyID,
		v.IOPS,
		v.Throughput,
		v.InstanceID,
		v.AttachmentDevice,
		v.AttachedAt,
		v.CostPerMonth,
		v.Tags,
		v.VolumeCreatedAt,
		v.LastScannedAt,
		v.CreatedAt,
		v.UpdatedAt,
	)
	return err
}

func upsertSnapshot(ctx context.Context, sess Session, sn *models.Snapshot) error {
	query := `
		INSERT INTO snapshots (
			id, tenant_id, cloud_account_id, snapshot_id, volume_id, region,
			state, progress, volume_size_gb, encrypted, kms_key_id, description,
			snapshot_time, tags, last_scanned_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (tenant_id, snapshot_id) DO UPDATE SET
			state           = EXCLUDED.state,
			progress        = EXCLUDED.progress,
			tags            = EXCLUDED.tags,
			last_scanned_at = EXCLUDED.last_scanned_at,
			updated_at      = EXCLUDED.updated_at
	`
	sn.ID = uuid.New()
	now := time.Now()
	sn.LastScannedAt = now
	sn.CreatedAt = now
	sn.UpdatedAt = now

	_, err := sess.ExecContext(ctx, query,
		sn.ID,
		sn.TenantID,
		sn.CloudAccountID,
		sn.SnapshotID,
		sn.VolumeID,
		sn.Region,
		sn.State,
		sn.Progress,
		sn.VolumeSizeGB,
		sn.Encrypted,
		sn.KMSKeyID,
		sn.Description,
		sn.SnapshotTime,
		sn.Tags,
		sn.LastScannedAt,
		sn.CreatedAt,
		sn.UpdatedAt,
	)
	return err
}

func (s *Store) UpsertVolume(ctx context.Context, tenantID string, v *models.Volume) error {
	return s.WithTenant(ctx, tenantID, func(sess Session) error {
		return upsertVolume(ctx, sess, v)
	})
}

func (s *Store) UpsertSnapshot(ctx context.Context, tenantID string, sn *models.Snapshot) error {
	return s.WithTenant(ctx, tenantID, func(sess Session) error {
		return upsertSnapshot(ctx, sess, sn)
	})
}

// PersistScanResults writes one region's observed volumes and snapshots in
// a single tenant-scoped transaction, so a region is recorded either
// completely or not at all.
func (s *Store) PersistScanResults(ctx context.Context, tenantID string, volumes []models.Volume, snapshots []models.Snapshot) error {
	if len(volumes) == 0 && len(snapshots) == 0 {
		return nil
	}
	return s.WithTenantTx(ctx, tenantID, func(sess Session) error {
		for i := range volumes {
			if err := upsertVolume(ctx, sess, &volumes[i]); err != nil {
				return fmt.Errorf("upserting volume %s: %w", volumes[i].VolumeID, err)
			}
		}
		for i := range snapshots {
			if err := upsertSnapshot(ctx, sess, &snapshots[i]); err != nil {
				return fmt.Errorf("upserting snapshot %s: %w", snapshots[i].SnapshotID, err)
			}
		}
		return nil
	})
}

type VolumeFilters struct {
	CloudAccountID *uuid.UUID
	Region         *string
	State          *string
	VolumeType     *string
	Encrypted      *bool
	Attached       *bool
	SortByCost     bool
	Limit          int
	Offset         int
}

func (s *Store) ListVolumes(ctx context.Context, tenantID string, filters VolumeFilters) ([]models.Volume, error) {
	query := `SELECT * FROM volumes WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argIdx := 2

	if filters.CloudAccountID != nil {
		query += fmt.Sprintf(" AND cloud_account_id = $%d", argIdx)
		args = append(args, *filters.CloudAccountID)
		argIdx++
	}
	if filters.Region != nil {
		query += fmt.Sprintf(" AND region = $%d", argIdx)
		args = append(args, *filters.Region)
		argIdx++
	}
	if filters.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, *filters.State)
		argIdx++
	}
	if filters.VolumeType != nil {
		query += fmt.Sprintf(" AND volume_type = $%d", argIdx)
		args = append(args, *filters.VolumeType)
		argIdx++
	}
	if filters.Encrypted != nil {
		query += fmt.Sprintf(" AND encrypted = $%d", argIdx)
		args = append(args, *filters.Encrypted)
		argIdx++
	}
	if filters.Attached != nil {
		if *filters.Attached {
			query += " AND instance_id IS NOT NULL"
		} else {
			query += " AND instance_id IS NULL"
		}
	}

	if filters.SortByCost {
		query += " ORDER BY cost_per_month DESC"
	} else {
		query += " ORDER BY last_scanned_at DESC, volume_id"
	}

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	var volumes []models.Volume
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		return sess.SelectContext(ctx, &volumes, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return volumes, nil
}

type SnapshotFilters struct {
	CloudAccountID *uuid.UUID
	Region         *string
	VolumeID       *string
	Limit          int
	Offset         int
}

func (s *Store) ListSnapshots(ctx context.Context, tenantID string, filters SnapshotFilters) ([]models.Snapshot, error) {
	query := `SELECT * FROM snapshots WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	argIdx := 2

	if filters.CloudAccountID != nil {
		query += fmt.Sprintf(" AND cloud_account_id = $%d", argIdx)
		args = append(args, *filters.CloudAccountID)
		argIdx++
	}
	if filters.Region != nil {
		query += fmt.Sprintf(" AND region = $%d", argIdx)
		args = append(args, *filters.Region)
		argIdx++
	}
	if filters.VolumeID != nil {
		query += fmt.Sprintf(" AND volume_id = $%d", argIdx)
		args = append(args, *filters.VolumeID)
		argIdx++
	}

	query += " ORDER BY last_scanned_at DESC, snapshot_id"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	var snapshots []models.Snapshot
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		return sess.SelectContext(ctx, &snapshots, query, args...)
	})
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// VolumeSummary aggregates one tenant's inventory for dashboards and the
// PDF report.
type VolumeSummary struct {
	TotalVolumes      int     `db:"total_volumes"`
	TotalSizeGB       int64   `db:"total_size_gb"`
	TotalCostPerMonth float64 `db:"total_cost_per_month"`
	UnencryptedCount  int     `db:"unencrypted_count"`
	UnattachedCount   int     `db:"unattached_count"`
	SnapshotCount     int     `db:"snapshot_count"`
	AccountCount      int     `db:"account_count"`
}

func (s *Store) GetVolumeSummary(ctx context.Context, tenantID string) (*VolumeSummary, error) {
	var summary VolumeSummary
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `
			SELECT
				COUNT(*)                                      AS total_volumes,
				COALESCE(SUM(size_gb), 0)                     AS total_size_gb,
				COALESCE(SUM(cost_per_month), 0)              AS total_cost_per_month,
				COUNT(*) FILTER (WHERE NOT encrypted)         AS unencrypted_count,
				COUNT(*) FILTER (WHERE instance_id IS NULL)   AS unattached_count
			FROM volumes WHERE tenant_id = $1
		`
		if err := sess.GetContext(ctx, &summary, query, tenantID); err != nil {
			return err
		}

		snaps := `SELECT COUNT(*) FROM snapshots WHERE tenant_id = $1`
		if err := sess.GetContext(ctx, &summary.SnapshotCount, snaps, tenantID); err != nil {
			return err
		}

		accounts := `SELECT COUNT(*) FROM cloud_accounts WHERE tenant_id = $1 AND active`
		return sess.GetContext(ctx, &summary.AccountCount, accounts, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
