// Package scan coordinates one scan request from queue message to terminal
// scan record: credential validation, role assumption, region iteration,
// persistence.
package scan

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/ebsight/ebsight/internal/externalid"
	"github.com/ebsight/ebsight/internal/models"
)

type accountGetter interface {
	GetCloudAccountByAccountID(ctx context.Context, tenantID, awsAccountID string) (*models.CloudAccount, error)
}

// Validator decides whether a scan request is allowed to touch a customer
// account. Every check must pass; a store failure fails closed. Rejections
// are logged with the concrete reason but callers only ever see the opaque
// verdict, so responses cannot be used to probe registrations.
type Validator struct {
	accounts accountGetter
	extid    *externalid.Generator
	logger   *slog.Logger
}

func NewValidator(accounts accountGetter, gen *externalid.Generator, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		accounts: accounts,
		extid:    gen,
		logger:   logger,
	}
}

// Validate runs the registration checks in order: the account exists for
// this tenant, it is active, the requested role ARN is exactly the
// registered one, and the external id recomputed from the tenant and
// account matches both the stored and the claimed value. The error return
// is non-nil only for infrastructure failures, never for rejections.
func (v *Validator) Validate(ctx context.Context, req *models.ScanRequest) (bool, error) {
	account, err := v.accounts.GetCloudAccountByAccountID(ctx, req.TenantID, req.AccountID)
	if err != nil {
		return false, fmt.Errorf("looking up cloud account: %w", err)
	}
	if account == nil {
		v.reject(req, "account_not_registered")
		return false, nil
	}
	if !account.Active {
		v.reject(req, "account_inactive")
		return false, nil
	}
	if account.RoleARN != req.RoleARN {
		v.reject(req, "role_arn_mismatch")
		return false, nil
	}

	expected := v.extid.Generate(req.TenantID, req.AccountID)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(account.ExternalID)) != 1 {
		// The stored value no longer matches what this deployment would
		// derive; the registration predates a secret rotation or was
		// written by another environment.
		v.reject(req, "stored_external_id_mismatch")
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(req.ExternalID)) != 1 {
		v.reject(req, "claimed_external_id_mismatch")
		return false, nil
	}

	return true, nil
}

func (v *Validator) reject(req *models.ScanRequest, reason string) {
	v.logger.Warn("scan request rejected",
		"reason", reason,
		"scan_id", req.ScanID,
		"tenant_id", req.TenantID,
		"aws_account_id", req.AccountID)
}
