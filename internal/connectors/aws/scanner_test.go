package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"

	"github.com/ebsight/ebsight/internal/models"
	"github.com/ebsight/ebsight/internal/pricing"
)

type fakeEC2 struct {
	volumePages   []*ec2.DescribeVolumesOutput
	snapshotPages []*ec2.DescribeSnapshotsOutput
	volumesErr    error
	snapshotsErr  error

	volumeCalls    int
	snapshotCalls  int
	volumeInputs   []*ec2.DescribeVolumesInput
	snapshotInputs []*ec2.DescribeSnapshotsInput
}

func (f *fakeEC2) DescribeVolumes(ctx context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	f.volumeInputs = append(f.volumeInputs, in)
	call := f.volumeCalls
	f.volumeCalls++
	if f.volumesErr != nil {
		return nil, f.volumesErr
	}
	if call >= len(f.volumePages) {
		return &ec2.DescribeVolumesOutput{}, nil
	}
	return f.volumePages[call], nil
}

func (f *fakeEC2) DescribeSnapshots(ctx context.Context, in *ec2.DescribeSnapshotsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error) {
	f.snapshotInputs = append(f.snapshotInputs, in)
	call := f.snapshotCalls
	f.snapshotCalls++
	if f.snapshotsErr != nil {
		return nil, f.snapshotsErr
	}
	if call >= len(f.snapshotPages) {
		return &ec2.DescribeSnapshotsOutput{}, nil
	}
	return f.snapshotPages[call], nil
}

func newTestScanner(fake *fakeEC2) *RegionScanner {
	factory := func(creds aws.Credentials, region string) EC2Client { return fake }
	return NewRegionScanner(pricing.Default(), factory, nil)
}

func testCreds() aws.Credentials {
	return aws.Credentials{AccessKeyID: "k", SecretAccessKey: "s", SessionToken: "t"}
}

func vol(id string) ec2types.Volume {
	return ec2types.Volume{
		VolumeId:   aws.String(id),
		Size:       aws.Int32(10),
		VolumeType: ec2types.VolumeTypeGp3,
		State:      ec2types.VolumeStateAvailable,
		Encrypted:  aws.Bool(false),
	}
}

func TestScanRegionPaginatesVolumes(t *testing.T) {
	fake := &fakeEC2{
		volumePages: []*ec2.DescribeVolumesOutput{
			{
				Volumes:   []ec2types.Volume{vol("vol-1"), vol("vol-2")},
				NextToken: aws.String("page-2"),
			},
			{
				Volumes: []ec2types.Volume{vol("vol-3")},
			},
		},
	}
	scanner := newTestScanner(fake)

	volumes, _, err := scanner.ScanRegion(context.Background(), testCreds(), "us-east-1", "tenant-a", uuid.New())
	if err != nil {
		t.Fatalf("ScanRegion: %v", err)
	}

	if len(volumes) != 3 {
		t.Fatalf("expected 3 volumes across pages, got %d", len(volumes))
	}
	if fake.volumeCalls != 2 {
		t.Fatalf("expected 2 page fetches, got %d", fake.volumeCalls)
	}
	if tok := fake.volumeInputs[0].NextToken; tok != nil {
		t.Errorf("first page should carry no token, got %q", aws.ToString(tok))
	}
	if tok := aws.ToString(fake.volumeInputs[1].NextToken); tok != "page-2" {
		t.Errorf("second page token = %q, want page-2", tok)
	}
	if got := []string{volumes[0].VolumeID, volumes[1].VolumeID, volumes[2].VolumeID}; got[0] != "vol-1" || got[1] != "vol-2" || got[2] != "vol-3" {
		t.Errorf("volume order across pages = %v", got)
	}
}

func TestScanRegionNormalizesSparseVolume(t *testing.T) {
	fake := &fakeEC2{
		volumePages: []*ec2.DescribeVolumesOutput{
			{Volumes: []ec2types.Volume{{VolumeId: aws.String("vol-sparse")}}},
		},
	}
	scanner := newTestScanner(fake)

	volumes, _, err := scanner.ScanRegion(context.Background(), testCreds(), "eu-west-1", "tenant-a", uuid.New())
	if err != nil {
		t.Fatalf("ScanRegion: %v", err)
	}
	if len(volumes) != 1 {
		t.Fatalf("expected 1 volume, got %d", len(volumes))
	}

	v := volumes[0]
	if v.SizeGB != 0 {
		t.Errorf("SizeGB = %d, want 0", v.SizeGB)
	}
	if v.VolumeType != "unknown" {
		t.Errorf("VolumeType = %q, want unknown", v.VolumeType)
	}
	if v.State != models.VolumeStateUnknown {
		t.Errorf("State = %q, want unknown", v.State)
	}
	if v.Encrypted {
		t.Error("Encrypted should default to false")
	}
	if v.CostPerMonth != 0 {
		t.Errorf("CostPerMonth = %v, want 0 for unknown type", v.CostPerMonth)
	}
	if v.InstanceID != nil || v.AttachmentDevice != nil || v.AttachedAt != nil {
		t.Error("unattached volume must not carry attachment fields")
	}
	if v.Tags != nil {
		t.Errorf("Tags = %v, want nil for untagged volume", v.Tags)
	}
}

func TestScanRegionStampsCostAndIdentity(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	attached := created.Add(time.Hour)
	accountID := uuid.New()

	fake := &fakeEC2{
		volumePages: []*ec2.DescribeVolumesOutput{
			{Volumes: []ec2types.Volume{{
				VolumeId:         aws.String("vol-full"),
				Size:             aws.Int32(100),
				VolumeType:       ec2types.VolumeTypeGp3,
				State:            ec2types.VolumeStateInUse,
				Encrypted:        aws.Bool(true),
				KmsKeyId:         aws.String("arn:aws:kms:us-east-1:123456789012:key/abc"),
				Iops:             aws.Int32(3500),
				Throughput:       aws.Int32(250),
				AvailabilityZone: aws.String("us-east-1a"),
				CreateTime:       aws.Time(created),
				Attachments: []ec2types.VolumeAttachment{{
					InstanceId: aws.String("i-0abc"),
					Device:     aws.String("/dev/xvdf"),
					AttachTime: aws.Time(attached),
				}},
				Tags: []ec2types.Tag{
					{Key: aws.String("env"), Value: aws.String("prod")},
					{Key: aws.String("team"), Value: aws.String("storage")},
				},
			}}},
		},
	}
	scanner := newTestScanner(fake)

	volumes, _, err := scanner.ScanRegion(context.Background(), testCreds(), "us-east-1", "tenant-a", accountID)
	if err != nil {
		t.Fatalf("ScanRegion: %v", err)
	}

	v := volumes[0]
	if v.TenantID != "tenant-a" || v.CloudAccountID != accountID || v.Region != "us-east-1" {
		t.Errorf("identity stamp wrong: tenant=%q account=%v region=%q", v.TenantID, v.CloudAccountID, v.Region)
	}
	// 100 GB gp3 at 3500 IOPS: 100*0.08 + 500*0.005
	if v.CostPerMonth != 10.50 {
		t.Errorf("CostPerMonth = %v, want 10.50", v.CostPerMonth)
	}
	if !v.Attached() || *v.InstanceID != "i-0abc" || *v.AttachmentDevice != "/dev/xvdf" {
		t.Errorf("attachment not mapped: %+v", v)
	}
	if !v.AttachedAt.Equal(attached) {
		t.Errorf("AttachedAt = %v, want %v", v.AttachedAt, attached)
	}
	if !v.VolumeCreatedAt.Equal(created) {
		t.Errorf("VolumeCreatedAt = %v, want %v", v.VolumeCreatedAt, created)
	}
	if v.Tags["env"] != "prod" || v.Tags["team"] != "storage" {
		t.Errorf("Tags = %v", v.Tags)
	}
	if v.KMSKeyID == nil || *v.KMSKeyID == "" {
		t.Error("KMSKeyID not carried")
	}
	if v.IOPS == nil || *v.IOPS != 3500 || v.Throughput == nil || *v.Throughput != 250 {
		t.Errorf("performance fields not carried: iops=%v throughput=%v", v.IOPS, v.Throughput)
	}
}

func TestScanRegionListsOwnSnapshots(t *testing.T) {
	started := time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)
	fake := &fakeEC2{
		snapshotPages: []*ec2.DescribeSnapshotsOutput{
			{
				Snapshots: []ec2types.Snapshot{{
					SnapshotId: aws.String("snap-1"),
					VolumeId:   aws.String("vol-1"),
					State:      ec2types.SnapshotStateCompleted,
					Progress:   aws.String("100%"),
					VolumeSize: aws.Int32(50),
					Encrypted:  aws.Bool(true),
					StartTime:  aws.Time(started),
				}},
				NextToken: aws.String("next"),
			},
			{
				Snapshots: []ec2types.Snapshot{{SnapshotId: aws.String("snap-2")}},
			},
		},
	}
	scanner := newTestScanner(fake)

	_, snapshots, err := scanner.ScanRegion(context.Background(), testCreds(), "us-east-1", "tenant-a", uuid.New())
	if err != nil {
		t.Fatalf("ScanRegion: %v", err)
	}

	if len(snapshots) != 2 {
		t.Fatalf("expected 2 snapshots across pages, got %d", len(snapshots))
	}
	owners := fake.snapshotInputs[0].OwnerIds
	if len(owners) != 1 || owners[0] != "self" {
		t.Errorf("snapshot listing must be restricted to self, got %v", owners)
	}

	s := snapshots[0]
	if s.SnapshotID != "snap-1" || s.VolumeID != "vol-1" || s.State != "completed" {
		t.Errorf("snapshot not mapped: %+v", s)
	}
	if s.VolumeSizeGB != 50 || !s.Encrypted || s.Progress != "100%" {
		t.Errorf("snapshot fields not mapped: %+v", s)
	}
	if !s.SnapshotTime.Equal(started) {
		t.Errorf("SnapshotTime = %v, want %v", s.SnapshotTime, started)
	}

	if snapshots[1].State != "unknown" {
		t.Errorf("sparse snapshot state = %q, want unknown", snapshots[1].State)
	}
}

func TestScanRegionVolumeListingFailureAborts(t *testing.T) {
	fake := &fakeEC2{volumesErr: errors.New("RequestLimitExceeded")}
	scanner := newTestScanner(fake)

	volumes, snapshots, err := scanner.ScanRegion(context.Background(), testCreds(), "us-east-1", "tenant-a", uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if volumes != nil || snapshots != nil {
		t.Fatal("failed region must not return partial results")
	}
	if fake.snapshotCalls != 0 {
		t.Fatalf("snapshot listing should not run after volume failure, got %d calls", fake.snapshotCalls)
	}
}

func TestScanRegionSnapshotListingFailureAborts(t *testing.T) {
	fake := &fakeEC2{
		volumePages:  []*ec2.DescribeVolumesOutput{{Volumes: []ec2types.Volume{vol("vol-1")}}},
		snapshotsErr: errors.New("UnauthorizedOperation"),
	}
	scanner := newTestScanner(fake)

	volumes, snapshots, err := scanner.ScanRegion(context.Background(), testCreds(), "us-east-1", "tenant-a", uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
	if volumes != nil || snapshots != nil {
		t.Fatal("failed region must not return partial results")
	}
}
