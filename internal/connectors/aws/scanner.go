package aws

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/pricing"
)

const describePageSize = 500

// RegionScanner lists EBS volumes and snapshots in one region using
// already-assumed credentials. It never mutates provider state; the only
// calls it issues are Describe reads.
type RegionScanner struct {
	pricing *pricing.Table
	factory ClientFactory
	logger  *slog.Logger
}

// NewRegionScanner builds a scanner over the given pricing table. A nil
// factory falls back to real EC2 clients.
func NewRegionScanner(table *pricing.Table, factory ClientFactory, logger *slog.Logger) *RegionScanner {
	if table == nil {
		table = pricing.Default()
	}
	if factory == nil {
		factory = DefaultClientFactory
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RegionScanner{
		pricing: table,
		factory: factory,
		logger:  logger,
	}
}

// ScanRegion lists all volumes and self-owned snapshots in region and
// returns them normalized and stamped with tenant and account identity.
// A failure in either listing aborts the whole region; partial results are
// never returned.
func (s *RegionScanner) ScanRegion(ctx context.Context, creds aws.Credentials, region, tenantID string, cloudAccountID uuid.UUID) ([]models.Volume, []models.Snapshot, error) {
	client := s.factory(creds, region)

	volumes, err := s.listVolumes(ctx, client, region, tenantID, cloudAccountID)
	if err != nil {
		return nil, nil, err
	}

	snapshots, err := s.listSnapshots(ctx, client, region, tenantID, cloudAccountID)
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("region scanned",
		"region", region,
		"volumes", len(volumes),
		"snapshots", len(snapshots))

	return volumes, snapshots, nil
}

func (s *RegionScanner) listVolumes(ctx context.Context, client EC2Client, region, tenantID string, cloudAccountID uuid.UUID) ([]models.Volume, error) {
	var volumes []models.Volume

	paginator := ec2.NewDescribeVolumesPaginator(client, &ec2.DescribeVolumesInput{
		MaxResults: aws.Int32(describePageSize),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing volumes: %w", err)
		}

		for _, v := range page.Volumes {
			volumes = append(volumes, s.toVolume(v, region, tenantID, cloudAccountID))
		}
	}

	return volumes, nil
}

func (s *RegionScanner) listSnapshots(ctx context.Context, client EC2Client, region, tenantID string, cloudAccountID uuid.UUID) ([]models.Snapshot, error) {
	var snapshots []models.Snapshot

	paginator := ec2.NewDescribeSnapshotsPaginator(client, &ec2.DescribeSnapshotsInput{
		OwnerIds:   []string{"self"},
		MaxResults: aws.Int32(describePageSize),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing snapshots: %w", err)
		}

		for _, snap := range page.Snapshots {
			snapshots = append(snapshots, toSnapshot(snap, region, tenantID, cloudAccountID))
		}
	}

	return snapshots, nil
}

// toVolume normalizes one API volume. The provider marks most fields
// optional, so absent values get explicit defaults rather than leaking
// zero-value ambiguity into storage.
func (s *RegionScanner) toVolume(v ec2types.Volume, region, tenantID string, cloudAccountID uuid.UUID) models.Volume {
	volType := string(v.VolumeType)
	if volType == "" {
		volType = "unknown"
	}

	state := models.VolumeState(v.State)
	if state == "" {
		state = models.VolumeStateUnknown
	}

	size := aws.ToInt32(v.Size)

	vol := models.Volume{
		TenantID:         tenantID,
		CloudAccountID:   cloudAccountID,
		VolumeID:         aws.ToString(v.VolumeId),
		Region:           region,
		AvailabilityZone: aws.ToString(v.AvailabilityZone),
		SizeGB:           size,
		VolumeType:       volType,
		State:            state,
		Encrypted:        aws.ToBool(v.Encrypted),
		KMSKeyID:         v.KmsKeyId,
		IOPS:             v.Iops,
		Throughput:       v.Throughput,
		CostPerMonth:     s.pricing.CostPerMonth(volType, size, aws.ToInt32(v.Iops)),
		Tags:             tagsToJSONB(v.Tags),
		VolumeCreatedAt:  v.CreateTime,
	}

	// Multi-attach exists but is rare; record the first attachment only.
	if len(v.Attachments) > 0 {
		att := v.Attachments[0]
		vol.InstanceID = att.InstanceId
		vol.AttachmentDevice = att.Device
		vol.AttachedAt = att.AttachTime
	}

	return vol
}

func toSnapshot(snap ec2types.Snapshot, region, tenantID string, cloudAccountID uuid.UUID) models.Snapshot {
	state := string(snap.State)
	if state == "" {
		state = "unknown"
	}

	return models.Snapshot{
		TenantID:       tenantID,
		CloudAccountID: cloudAccountID,
		SnapshotID:     aws.ToString(snap.SnapshotId),
		VolumeID:       aws.ToString(snap.VolumeId),
		Region:         region,
		State:          state,
		Progress:       aws.ToString(snap.Progress),
		VolumeSizeGB:   aws.ToInt32(snap.VolumeSize),
		Encrypted:      aws.ToBool(snap.Encrypted),
		KMSKeyID:       snap.KmsKeyId,
		Description:    aws.ToString(snap.Description),
		SnapshotTime:   snap.StartTime,
		Tags:           tagsToJSONB(snap.Tags),
	}
}

func tagsToJSONB(tags []ec2types.Tag) models.JSONB {
	if len(tags) == 0 {
		return nil
	}
	out := make(models.JSONB, len(tags))
	for _, tag := range tags {
		out[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return out
}
