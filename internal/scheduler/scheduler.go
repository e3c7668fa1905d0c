// Package scheduler queues the recurring scan sweep. On each tick it walks
// every tenant's active accounts and queues one scan per account at the
// lowest priority, so manually triggered scans always run first.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/ebsight/ebsight/internal/models"
)

// Store is the persistence surface the sweep reads and writes.
// *store.Store satisfies it.
type Store interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	ListCloudAccounts(ctx context.Context, tenantID string, includeInactive bool) ([]models.CloudAccount, error)
	CreateScanRecord(ctx context.Context, rec *models.ScanRecord) error
}

// Queue carries the queued scan requests. *queue.Queue satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, req *models.ScanRequest, priority int) error
}

type Scheduler struct {
	cron     *cron.Cron
	store    Store
	queue    Queue
	schedule string
	logger   *slog.Logger

	ctx context.Context
}

type Config struct {
	Store    Store
	Queue    Queue
	Schedule string
	Logger   *slog.Logger
}

func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		store:    cfg.Store,
		queue:    cfg.Queue,
		schedule: cfg.Schedule,
		logger:   logger,
	}
}

// Start registers the sweep and starts the cron loop. The context is held
// for the scheduler's lifetime; canceling it aborts any sweep in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx = ctx

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(s.ctx); err != nil {
			s.logger.Error("scan sweep failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid scan schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule)

	return nil
}

// Stop halts the cron loop and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Sweep queues one scan for every active account of every tenant. A failure
// on one tenant or account is logged and skipped; the sweep keeps going.
func (s *Scheduler) Sweep(ctx context.Context) error {
	started := time.Now()

	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("listing tenants: %w", err)
	}

	var queued, failed int
	for _, tenant := range tenants {
		accounts, err := s.store.ListCloudAccounts(ctx, tenant.ID, false)
		if err != nil {
			s.logger.Error("failed to list accounts for sweep", "tenant_id", tenant.ID, "error", err)
			failed++
			continue
		}

		for _, account := range accounts {
			if err := s.queueScan(ctx, &account); err != nil {
				s.logger.Error("failed to queue scheduled scan",
					"tenant_id", tenant.ID,
					"aws_account_id", account.AWSAccountID,
					"error", err)
				failed++
				continue
			}
			queued++
		}
	}

	s.logger.Info("scan sweep finished",
		"tenants", len(tenants),
		"scans_queued", queued,
		"failures", failed,
		"duration", time.Since(started))

	return nil
}

func (s *Scheduler) queueScan(ctx context.Context, account *models.CloudAccount) error {
	rec := &models.ScanRecord{
		ScanID:         uuid.New(),
		TenantID:       account.TenantID,
		CloudAccountID: account.ID,
		Status:         models.ScanStatusQueued,
	}
	if err := s.store.CreateScanRecord(ctx, rec); err != nil {
		return fmt.Errorf("creating scan record: %w", err)
	}

	req := &models.ScanRequest{
		ScanID:     rec.ScanID.String(),
		TenantID:   account.TenantID,
		AccountID:  account.AWSAccountID,
		RoleARN:    account.RoleARN,
		ExternalID: account.ExternalID,
		Regions:    account.Regions,
	}
	if err := s.queue.Enqueue(ctx, req, 0); err != nil {
		return fmt.Errorf("enqueueing scan: %w", err)
	}

	return nil
}
