package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ebsight/ebsight/internal/models"
)

// RegisterCloudAccount inserts a new account and its audit entry in one
// tenant-scoped transaction. (tenant_id, aws_account_id) is unique;
// collisions surface as ErrDuplicateAccount.
func (s *Store) RegisterCloudAccount(ctx context.Context, account *models.CloudAccount, actor string) error {
	account.ID = uuid.New()
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	account.Active = true

	err := s.WithTenantTx(ctx, account.TenantID, func(sess Session) error {
		query := `
			INSERT INTO cloud_accounts (id, tenant_id, alias, aws_account_id, role_arn, external_id, active, regions, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		if _, err := sess.ExecContext(ctx, query,
			account.ID,
			account.TenantID,
			account.Alias,
			account.AWSAccountID,
			account.RoleARN,
			account.ExternalID,
			account.Active,
			account.Regions,
			account.CreatedAt,
			account.UpdatedAt,
		); err != nil {
			return err
		}

		return insertAuditEntry(ctx, sess, &models.AuditLogEntry{
			TenantID:     account.TenantID,
			Actor:        actor,
			Action:       models.AuditAccountRegistered,
			ResourceType: "cloud_account",
			ResourceID:   account.ID.String(),
			Details: models.JSONB{
				"aws_account_id": account.AWSAccountID,
				"alias":          account.Alias,
			},
		})
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("registering cloud account: %w", err)
	}
	return nil
}

// GetCloudAccountByAccountID looks up an account by its foreign AWS account
// identifier within one tenant. Returns (nil, nil) when absent.
func (s *Store) GetCloudAccountByAccountID(ctx context.Context, tenantID, awsAccountID string) (*models.CloudAccount, error) {
	var account models.CloudAccount
	found := false
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `SELECT * FROM cloud_accounts WHERE tenant_id = $1 AND aws_account_id = $2`
		err := sess.GetContext(ctx, &account, query, tenantID, awsAccountID)
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
	return &account, nil
}

// GetCloudAccount returns one account by row id. Returns (nil, nil) when
// absent.
func (s *Store) GetCloudAccount(ctx context.Context, tenantID string, id uuid.UUID) (*models.CloudAccount, error) {
	var account models.CloudAccount
	found := false
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `SELECT * FROM cloud_accounts WHERE tenant_id = $1 AND id = $2`
		err := sess.GetContext(ctx, &account, query, tenantID, id)
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
	return &account, nil
}

func (s *Store) ListCloudAccounts(ctx context.Context, tenantID string, includeInactive bool) ([]models.CloudAccount, error) {
	var accounts []models.CloudAccount
	err := s.WithTenant(ctx, tenantID, func(sess Session) error {
		query := `SELECT * FROM cloud_accounts WHERE tenant_id = $1`
		if !includeInactive {
			query += ` AND active`
		}
		query += ` ORDER BY created_at DESC`
		return sess.SelectContext(ctx, &accounts, query, tenantID)
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// DeactivateCloudAccount flips the active flag off and records the action
// in the audit log, atomically. Accounts are never hard-deleted. Already
// inactive accounts are left untouched (no duplicate audit entry).
func (s *Store) DeactivateCloudAccount(ctx context.Context, tenantID string, id uuid.UUID, actor string) error {
	return s.WithTenantTx(ctx, tenantID, func(sess Session) error {
		var exists bool
		check := `SELECT EXISTS (SELECT 1 FROM cloud_accounts WHERE tenant_id = $1 AND id = $2)`
		if err := sess.GetContext(ctx, &exists, check, tenantID, id); err != nil {
			return err
		}
		if !exists {
			return ErrAccountNotFound
		}

		update := `UPDATE cloud_accounts SET active = false, updated_at = $1 WHERE tenant_id = $2 AND id = $3 AND active`
		res, err := sess.ExecContext(ctx, update, time.Now(), tenantID, id)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}

		return insertAuditEntry(ctx, sess, &models.AuditLogEntry{
			TenantID:     tenantID,
			Actor:        actor,
			Action:       models.AuditAccountDeactivated,
			ResourceType: "cloud_account",
			ResourceID:   id.String(),
		})
	})
}
