package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
)

const (
	// DefaultScanTimeout bounds one whole scan across all of its regions.
	DefaultScanTimeout = 15 * time.Minute

	// credentialRefreshMargin forces re-assumption when the session would
	// expire before a region scan can reasonably finish.
	credentialRefreshMargin = 5 * time.Minute
)

// Store is the persistence surface the orchestrator needs. *store.Store
// satisfies it.
type Store interface {
	GetCloudAccountByAccountID(ctx context.Context, tenantID, awsAccountID string) (*models.CloudAccount, error)
	ClaimScanInProgress(ctx context.Context, tenantID string, scanID uuid.UUID) (bool, error)
	PersistScanResults(ctx context.Context, tenantID string, volumes []models.Volume, snapshots []models.Snapshot) error
	CompleteScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID, volumesFound int, regionErrors []string) error
	FailScanRecord(ctx context.Context, tenantID string, scanID uuid.UUID, message string) error
}

type CredentialValidator interface {
	Validate(ctx context.Context, req *models.ScanRequest) (bool, error)
}

type RoleAssumer interface {
	Assume(ctx context.Context, roleARN, externalID, sessionLabel string) (aws.Credentials, error)
}

type RegionLister interface {
	ScanRegion(ctx context.Context, creds aws.Credentials, region, tenantID string, cloudAccountID uuid.UUID) ([]models.Volume, []models.Snapshot, error)
}

// Orchestrator drives one scan request through its lifecycle. Regions run
// sequentially: a region failure is recorded and the scan moves on, so one
// throttled region cannot sink the inventory of the others.
type Orchestrator struct {
	store     Store
	validator CredentialValidator
	assumer   RoleAssumer
	scanner   RegionLister
	timeout   time.Duration
	logger    *slog.Logger
}

type Config struct {
	Store     Store
	Validator CredentialValidator
	Assumer   RoleAssumer
	Scanner   RegionLister
	Timeout   time.Duration
	Logger    *slog.Logger
}

func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultScanTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		store:     cfg.Store,
		validator: cfg.Validator,
		assumer:   cfg.Assumer,
		scanner:   cfg.Scanner,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}
}

// Execute processes one scan request to a terminal state. The returned
// error reports infrastructure trouble to the caller; business rejections
// (validation failure, refused assumption) are recorded on the scan record
// and return nil, because redelivering the same message cannot fix them.
func (o *Orchestrator) Execute(ctx context.Context, req *models.ScanRequest) error {
	scanID, err := uuid.Parse(req.ScanID)
	if err != nil {
		return fmt.Errorf("malformed scan id %q: %w", req.ScanID, err)
	}
	if req.TenantID == "" {
		return fmt.Errorf("scan %s carries no tenant", scanID)
	}

	log := o.logger.With("scan_id", scanID.String(), "tenant_id", req.TenantID)

	// The timeout bounds provider traffic. Terminal record writes run on
	// the parent context so a timed-out scan can still be marked failed.
	scanCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	ok, err := o.validator.Validate(scanCtx, req)
	if err != nil {
		o.fail(ctx, req.TenantID, scanID, "credential validation failed", log)
		return fmt.Errorf("validating scan %s: %w", scanID, err)
	}
	if !ok {
		o.fail(ctx, req.TenantID, scanID, "credential validation failed", log)
		return nil
	}

	account, err := o.store.GetCloudAccountByAccountID(scanCtx, req.TenantID, req.AccountID)
	if err != nil {
		o.fail(ctx, req.TenantID, scanID, "credential validation failed", log)
		return fmt.Errorf("loading cloud account for scan %s: %w", scanID, err)
	}
	if account == nil {
		o.fail(ctx, req.TenantID, scanID, "credential validation failed", log)
		return nil
	}

	regions := req.Regions
	if len(regions) == 0 {
		regions = account.Regions
	}
	if len(regions) == 0 {
		o.fail(ctx, req.TenantID, scanID, "no regions configured for account", log)
		return nil
	}

	claimed, err := o.store.ClaimScanInProgress(scanCtx, req.TenantID, scanID)
	if err != nil {
		return fmt.Errorf("claiming scan %s: %w", scanID, err)
	}
	if !claimed {
		// Redelivered message for a scan already claimed or finished.
		log.Info("scan not in queued state, skipping delivery")
		return nil
	}

	sessionLabel := "ebsight-scan-" + scanID.String()[:8]

	creds, err := o.assumer.Assume(scanCtx, req.RoleARN, req.ExternalID, sessionLabel)
	if err != nil {
		log.Warn("role assumption failed", "error", err)
		o.fail(ctx, req.TenantID, scanID, "role assumption failed", log)
		return nil
	}

	var (
		volumesFound int
		regionErrors []string
	)

	for _, region := range regions {
		if creds.CanExpire && time.Until(creds.Expires) < credentialRefreshMargin {
			creds, err = o.assumer.Assume(scanCtx, req.RoleARN, req.ExternalID, sessionLabel)
			if err != nil {
				log.Warn("credential refresh failed", "region", region, "error", err)
				o.fail(ctx, req.TenantID, scanID, "role assumption failed", log)
				return nil
			}
		}

		volumes, snapshots, err := o.scanner.ScanRegion(scanCtx, creds, region, req.TenantID, account.ID)
		if err != nil {
			if scanCtx.Err() != nil {
				o.fail(ctx, req.TenantID, scanID, "scan timed out", log)
				return fmt.Errorf("scan %s: %w", scanID, scanCtx.Err())
			}
			log.Warn("region scan failed", "region", region, "error", err)
			regionErrors = append(regionErrors, fmt.Sprintf("%s: %v", region, err))
			continue
		}

		if err := o.store.PersistScanResults(scanCtx, req.TenantID, volumes, snapshots); err != nil {
			o.fail(ctx, req.TenantID, scanID, "persisting scan results failed", log)
			return fmt.Errorf("persisting results for scan %s region %s: %w", scanID, region, err)
		}

		volumesFound += len(volumes)
	}

	if err := o.store.CompleteScanRecord(ctx, req.TenantID, scanID, volumesFound, regionErrors); err != nil {
		return fmt.Errorf("completing scan %s: %w", scanID, err)
	}

	log.Info("scan completed",
		"volumes_found", volumesFound,
		"regions", len(regions),
		"region_errors", len(regionErrors))

	return nil
}

// fail marks the record failed with an opaque message. Recording is best
// effort: a scan that cannot be marked failed stays observable through its
// non-terminal status.
func (o *Orchestrator) fail(ctx context.Context, tenantID string, scanID uuid.UUID, message string, log *slog.Logger) {
	if err := o.store.FailScanRecord(ctx, tenantID, scanID, message); err != nil {
		log.Error("marking scan failed", "error", err)
	}
}
