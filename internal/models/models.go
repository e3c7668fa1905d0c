package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StringArray is an alias for pq.StringArray to handle PostgreSQL arrays
type StringArray = pq.StringArray

type ScanStatus string

const (
	ScanStatusQueued     ScanStatus = "queued"
	ScanStatusInProgress ScanStatus = "in-progress"
	ScanStatusCompleted  ScanStatus = "completed"
	ScanStatusFailed     ScanStatus = "failed"
)

// Terminal reports whether the status is an end state for a scan.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

type VolumeState string

const (
	VolumeStateCreating  VolumeState = "creating"
	VolumeStateAvailable VolumeState = "available"
	VolumeStateInUse     VolumeState = "in-use"
	VolumeStateDeleting  VolumeState = "deleting"
	VolumeStateError     VolumeState = "error"
	VolumeStateUnknown   VolumeState = "unknown"
)

type AuditAction string

const (
	AuditAccountRegistered  AuditAction = "account.registered"
	AuditAccountDeactivated AuditAction = "account.deactivated"
	AuditScanRequested      AuditAction = "scan.requested"
)

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}

// Tenant is the root of isolation. Its identifier is opaque and is the
// value bound into the database session for row-level security.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CloudAccount is a customer AWS account registered for scanning.
// (tenant_id, aws_account_id) is unique. Accounts are deactivated, never
// hard-deleted.
type CloudAccount struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	TenantID     string      `json:"tenant_id" db:"tenant_id"`
	Alias        string      `json:"alias" db:"alias"`
	AWSAccountID string      `json:"aws_account_id" db:"aws_account_id"`
	RoleARN      string      `json:"role_arn" db:"role_arn"`
	ExternalID   string      `json:"external_id" db:"external_id"`
	Active       bool        `json:"active" db:"active"`
	Regions      StringArray `json:"regions" db:"regions"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// Volume is one observed EBS volume. (tenant_id, volume_id) is unique; the
// scanner's upsert overwrites only the mutable observed fields, never the
// identity fields.
type Volume struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	TenantID         string      `json:"tenant_id" db:"tenant_id"`
	CloudAccountID   uuid.UUID   `json:"cloud_account_id" db:"cloud_account_id"`
	VolumeID         string      `json:"volume_id" db:"volume_id"`
	Region           string      `json:"region" db:"region"`
	AvailabilityZone string      `json:"availability_zone" db:"availability_zone"`
	SizeGB           int32       `json:"size_gb" db:"size_gb"`
	VolumeType       string      `json:"volume_type" db:"volume_type"`
	State            VolumeState `json:"state" db:"state"`
	Encrypted        bool        `json:"encrypted" db:"encrypted"`
	KMSKeyID         *string     `json:"kms_key_id,omitempty" db:"kms_key_id"`
	IOPS             *int32      `json:"iops,omitempty" db:"iops"`
	Throughput       *int32      `json:"throughput,omitempty" db:"throughput"`
	InstanceID       *string     `json:"instance_id,omitempty" db:"instance_id"`
	AttachmentDevice *string     `json:"attachment_device,omitempty" db:"attachment_device"`
	AttachedAt       *time.Time  `json:"attached_at,omitempty" db:"attached_at"`
	CostPerMonth     float64     `json:"cost_per_month" db:"cost_per_month"`
	Tags             JSONB       `json:"tags,omitempty" db:"tags"`
	VolumeCreatedAt  *time.Time  `json:"volume_created_at,omitempty" db:"volume_created_at"`
	LastScannedAt    time.Time   `json:"last_scanned_at" db:"last_scanned_at"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// Attached reports whether the volume was observed attached to an instance.
func (v *Volume) Attached() bool {
	return v.InstanceID != nil && *v.InstanceID != ""
}

// Snapshot is one observed EBS snapshot, belonging to a volume.
// (tenant_id, snapshot_id) is unique.
type Snapshot struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	CloudAccountID uuid.UUID  `json:"cloud_account_id" db:"cloud_account_id"`
	SnapshotID     string     `json:"snapshot_id" db:"snapshot_id"`
	VolumeID       string     `json:"volume_id" db:"volume_id"`
	Region         string     `json:"region" db:"region"`
	State          string     `json:"state" db:"state"`
	Progress       string     `json:"progress,omitempty" db:"progress"`
	VolumeSizeGB   int32      `json:"volume_size_gb" db:"volume_size_gb"`
	Encrypted      bool       `json:"encrypted" db:"encrypted"`
	KMSKeyID       *string    `json:"kms_key_id,omitempty" db:"kms_key_id"`
	Description    string     `json:"description,omitempty" db:"description"`
	SnapshotTime   *time.Time `json:"snapshot_time,omitempty" db:"snapshot_time"`
	Tags           JSONB      `json:"tags,omitempty" db:"tags"`
	LastScannedAt  time.Time  `json:"last_scanned_at" db:"last_scanned_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// ScanRequest is the queue message that triggers one scan. Field names are
// the wire contract shared with producers.
type ScanRequest struct {
	ScanID     string   `json:"scanId"`
	TenantID   string   `json:"tenantId"`
	AccountID  string   `json:"accountId"`
	RoleARN    string   `json:"roleArn"`
	ExternalID string   `json:"externalId"`
	Regions    []string `json:"regions"`
}

// ScanRecord tracks one scan invocation from queued to a terminal state.
// Mutated exactly twice by the orchestrator; never deleted.
type ScanRecord struct {
	ScanID         uuid.UUID   `json:"scan_id" db:"scan_id"`
	TenantID       string      `json:"tenant_id" db:"tenant_id"`
	CloudAccountID uuid.UUID   `json:"cloud_account_id" db:"cloud_account_id"`
	Status         ScanStatus  `json:"status" db:"status"`
	StartedAt      time.Time   `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
	VolumesFound   int         `json:"volumes_found" db:"volumes_found"`
	Errors         StringArray `json:"errors,omitempty" db:"errors"`
	ErrorMessage   string      `json:"error_message,omitempty" db:"error_message"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// AuditLogEntry is an append-only, tenant-scoped record of a
// security-relevant action. Immutable once written.
type AuditLogEntry struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	TenantID     string      `json:"tenant_id" db:"tenant_id"`
	Actor        string      `json:"actor" db:"actor"`
	Action       AuditAction `json:"action" db:"action"`
	ResourceType string      `json:"resource_type" db:"resource_type"`
	ResourceID   string      `json:"resource_id" db:"resource_id"`
	Details      JSONB       `json:"details,omitempty" db:"details"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}
