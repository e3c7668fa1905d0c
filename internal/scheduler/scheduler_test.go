package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/ebsight/ebsight/internal/models"
	"github.com/google/uuid"
)

type fakeStore struct {
	tenants          []models.Tenant
	accountsByTenant map[string][]models.CloudAccount
	listAccountsErr  map[string]error
	created          []*models.ScanRecord
	createErr        error
}

func (f *fakeStore) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return f.tenants, nil
}

func (f *fakeStore) ListCloudAccounts(ctx context.Context, tenantID string, includeInactive bool) ([]models.CloudAccount, error) {
	if includeInactive {
		return nil, errors.New("sweep must only see active accounts")
	}
	if err := f.listAccountsErr[tenantID]; err != nil {
		return nil, err
	}
	return f.accountsByTenant[tenantID], nil
}

func (f *fakeStore) CreateScanRecord(ctx context.Context, rec *models.ScanRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, rec)
	return nil
}

type fakeQueue struct {
	enqueued   []*models.ScanRequest
	priorities []int
	errFor     string
}

func (f *fakeQueue) Enqueue(ctx context.Context, req *models.ScanRequest, priority int) error {
	if f.errFor != "" && req.AccountID == f.errFor {
		return errors.New("redis unavailable")
	}
	f.enqueued = append(f.enqueued, req)
	f.priorities = append(f.priorities, priority)
	return nil
}

func account(tenantID, awsAccountID string) models.CloudAccount {
	return models.CloudAccount{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Alias:        "acct-" + awsAccountID,
		AWSAccountID: awsAccountID,
		RoleARN:      "arn:aws:iam::" + awsAccountID + ":role/EBSightScanner",
		ExternalID:   "0123456789abcdef0123456789abcdef",
		Active:       true,
		Regions:      models.StringArray{"us-east-1"},
	}
}

func TestSweepQueuesActiveAccounts(t *testing.T) {
	st := &fakeStore{
		tenants: []models.Tenant{{ID: "tenant-a"}, {ID: "tenant-b"}},
		accountsByTenant: map[string][]models.CloudAccount{
			"tenant-a": {account("tenant-a", "111111111111")},
			"tenant-b": {account("tenant-b", "222222222222"), account("tenant-b", "333333333333")},
		},
	}
	q := &fakeQueue{}

	s := New(Config{Store: st, Queue: q, Schedule: "0 2 * * *"})
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(st.created) != 3 {
		t.Fatalf("created %d scan records, want 3", len(st.created))
	}
	if len(q.enqueued) != 3 {
		t.Fatalf("enqueued %d requests, want 3", len(q.enqueued))
	}

	for i, req := range q.enqueued {
		if q.priorities[i] != 0 {
			t.Errorf("request %d enqueued at priority %d, want 0", i, q.priorities[i])
		}
		if req.ScanID != st.created[i].ScanID.String() {
			t.Errorf("request %d scan id %q does not match record %q", i, req.ScanID, st.created[i].ScanID)
		}
		if req.RoleARN == "" || req.ExternalID == "" {
			t.Errorf("request %d missing credentials: %+v", i, req)
		}
	}

	if q.enqueued[0].TenantID != "tenant-a" || q.enqueued[1].TenantID != "tenant-b" {
		t.Errorf("unexpected tenant ordering: %q, %q", q.enqueued[0].TenantID, q.enqueued[1].TenantID)
	}
}

func TestSweepSkipsFailingTenant(t *testing.T) {
	st := &fakeStore{
		tenants: []models.Tenant{{ID: "tenant-a"}, {ID: "tenant-b"}},
		accountsByTenant: map[string][]models.CloudAccount{
			"tenant-b": {account("tenant-b", "222222222222")},
		},
		listAccountsErr: map[string]error{
			"tenant-a": errors.New("connection reset"),
		},
	}
	q := &fakeQueue{}

	s := New(Config{Store: st, Queue: q, Schedule: "0 2 * * *"})
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d requests, want 1", len(q.enqueued))
	}
	if q.enqueued[0].TenantID != "tenant-b" {
		t.Errorf("enqueued for tenant %q, want tenant-b", q.enqueued[0].TenantID)
	}
}

func TestSweepContinuesPastEnqueueFailure(t *testing.T) {
	st := &fakeStore{
		tenants: []models.Tenant{{ID: "tenant-a"}},
		accountsByTenant: map[string][]models.CloudAccount{
			"tenant-a": {account("tenant-a", "111111111111"), account("tenant-a", "222222222222")},
		},
	}
	q := &fakeQueue{errFor: "111111111111"}

	s := New(Config{Store: st, Queue: q, Schedule: "0 2 * * *"})
	if err := s.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d requests, want 1", len(q.enqueued))
	}
	if q.enqueued[0].AccountID != "222222222222" {
		t.Errorf("enqueued account %q, want 222222222222", q.enqueued[0].AccountID)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Store: &fakeStore{}, Queue: &fakeQueue{}, Schedule: "every day at two"})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start accepted a malformed schedule")
	}
}
