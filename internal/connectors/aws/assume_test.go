package aws

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
)

type fakeSTS struct {
	out   *sts.AssumeRoleOutput
	err   error
	calls int
	input *sts.AssumeRoleInput
}

func (f *fakeSTS) AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.calls++
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestAssumeRejectsForeignRoleARN(t *testing.T) {
	tests := []struct {
		name    string
		roleARN string
	}{
		{"wrong role name", "arn:aws:iam::123456789012:role/AdminAccess"},
		{"role name prefix only", "arn:aws:iam::123456789012:role/EBSightScannerEvil"},
		{"eleven digit account", "arn:aws:iam::12345678901:role/EBSightScanner"},
		{"thirteen digit account", "arn:aws:iam::1234567890123:role/EBSightScanner"},
		{"wrong partition", "arn:aws-cn:iam::123456789012:role/EBSightScanner"},
		{"path segment", "arn:aws:iam::123456789012:role/service/EBSightScanner"},
		{"trailing junk", "arn:aws:iam::123456789012:role/EBSightScanner "},
		{"not an arn", "EBSightScanner"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSTS{}
			assumer := NewAssumerWithClient(client, "EBSightScanner", time.Hour, nil)

			_, err := assumer.Assume(context.Background(), tt.roleARN, "cafe0123", "scan-1")
			if !errors.Is(err, ErrInvalidRoleARN) {
				t.Fatalf("expected ErrInvalidRoleARN, got %v", err)
			}
			if client.calls != 0 {
				t.Fatalf("expected no provider call for rejected arn, got %d", client.calls)
			}
		})
	}
}

func TestAssumeMapsCredentials(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	client := &fakeSTS{
		out: &sts.AssumeRoleOutput{
			Credentials: &ststypes.Credentials{
				AccessKeyId:     aws.String("ASIAEXAMPLE"),
				SecretAccessKey: aws.String("secret"),
				SessionToken:    aws.String("token"),
				Expiration:      aws.Time(expiry),
			},
		},
	}
	assumer := NewAssumerWithClient(client, "EBSightScanner", time.Hour, nil)

	roleARN := "arn:aws:iam::123456789012:role/EBSightScanner"
	creds, err := assumer.Assume(context.Background(), roleARN, "cafe0123deadbeef", "scan-abc")
	if err != nil {
		t.Fatalf("Assume: %v", err)
	}

	if creds.AccessKeyID != "ASIAEXAMPLE" || creds.SecretAccessKey != "secret" || creds.SessionToken != "token" {
		t.Fatalf("credentials not mapped: %+v", creds)
	}
	if !creds.CanExpire || !creds.Expires.Equal(expiry) {
		t.Fatalf("expiry not mapped: CanExpire=%v Expires=%v", creds.CanExpire, creds.Expires)
	}

	in := client.input
	if aws.ToString(in.RoleArn) != roleARN {
		t.Errorf("RoleArn = %q", aws.ToString(in.RoleArn))
	}
	if aws.ToString(in.ExternalId) != "cafe0123deadbeef" {
		t.Errorf("ExternalId = %q", aws.ToString(in.ExternalId))
	}
	if aws.ToString(in.RoleSessionName) != "scan-abc" {
		t.Errorf("RoleSessionName = %q", aws.ToString(in.RoleSessionName))
	}
	if got := aws.ToInt32(in.DurationSeconds); got != 3600 {
		t.Errorf("DurationSeconds = %d, want 3600", got)
	}

	policy := aws.ToString(in.Policy)
	for _, action := range []string{"ec2:DescribeVolumes", "ec2:DescribeSnapshots", "ec2:DescribeInstances"} {
		if !strings.Contains(policy, action) {
			t.Errorf("session policy missing %s", action)
		}
	}
	if strings.Contains(policy, "Deny") {
		t.Errorf("session policy should only allow: %s", policy)
	}
}

func TestAssumeWrapsProviderRefusal(t *testing.T) {
	client := &fakeSTS{err: errors.New("AccessDenied: not authorized to perform sts:AssumeRole")}
	assumer := NewAssumerWithClient(client, "EBSightScanner", time.Hour, nil)

	_, err := assumer.Assume(context.Background(), "arn:aws:iam::123456789012:role/EBSightScanner", "cafe0123", "scan-1")
	if !errors.Is(err, ErrAssumeRole) {
		t.Fatalf("expected ErrAssumeRole, got %v", err)
	}
	if errors.Is(err, ErrInvalidRoleARN) {
		t.Fatal("provider refusal must not be classified as an arn rejection")
	}
}

func TestAssumeRejectsEmptyCredentialResponse(t *testing.T) {
	client := &fakeSTS{out: &sts.AssumeRoleOutput{}}
	assumer := NewAssumerWithClient(client, "EBSightScanner", time.Hour, nil)

	_, err := assumer.Assume(context.Background(), "arn:aws:iam::123456789012:role/EBSightScanner", "cafe0123", "scan-1")
	if !errors.Is(err, ErrAssumeRole) {
		t.Fatalf("expected ErrAssumeRole for empty response, got %v", err)
	}
}

func TestAssumeDefaultsDuration(t *testing.T) {
	client := &fakeSTS{
		out: &sts.AssumeRoleOutput{
			Credentials: &ststypes.Credentials{
				AccessKeyId:     aws.String("k"),
				SecretAccessKey: aws.String("s"),
				SessionToken:    aws.String("t"),
				Expiration:      aws.Time(time.Now().Add(time.Hour)),
			},
		},
	}
	assumer := NewAssumerWithClient(client, "EBSightScanner", 0, nil)

	if _, err := assumer.Assume(context.Background(), "arn:aws:iam::123456789012:role/EBSightScanner", "cafe0123", "scan-1"); err != nil {
		t.Fatalf("Assume: %v", err)
	}
	if got := aws.ToInt32(client.input.DurationSeconds); got != 3600 {
		t.Errorf("DurationSeconds = %d, want default 3600", got)
	}
}
