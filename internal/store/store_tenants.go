package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ebsight/ebsight/internal/models"
)

// The tenants registry is the one intentionally tenant-exempt table: it is
// what tenancy is defined by and carries no tenant-owned data, so these
// queries run on the bare pool without a session binding.

func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	tenant.CreatedAt = time.Now()

	query := `INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`
	_, err := s.db.ExecContext(ctx, query, tenant.ID, tenant.Name, tenant.CreatedAt)
	return err
}

func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	query := `SELECT * FROM tenants WHERE id = $1`
	err := s.db.GetContext(ctx, &tenant, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	query := `SELECT * FROM tenants ORDER BY created_at`
	err := s.db.SelectContext(ctx, &tenants, query)
	return tenants, err
}
