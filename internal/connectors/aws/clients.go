// Package aws holds the cross-account scanning clients: role assumption
// into customer accounts and region-by-region EBS discovery. Customer
// access only ever happens through short-lived assumed credentials scoped
// by an inline read-only policy.
package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// STSClient is the narrow STS surface the assumer uses. *sts.Client
// satisfies it; tests substitute fakes.
type STSClient interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// EC2Client is the narrow EC2 surface the region scanner uses. *ec2.Client
// satisfies it, and so do the SDK paginators' client interfaces.
type EC2Client interface {
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeSnapshots(ctx context.Context, params *ec2.DescribeSnapshotsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSnapshotsOutput, error)
}

// ClientFactory builds an EC2 client for one region from assumed
// credentials. Injected so tests can observe scan traffic without AWS.
type ClientFactory func(creds aws.Credentials, region string) EC2Client

// DefaultClientFactory carries the scan-local assumed credentials into a
// plain regional client. Credentials are never cached across scans.
func DefaultClientFactory(creds aws.Credentials, region string) EC2Client {
	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	}
	return ec2.NewFromConfig(cfg)
}

// RoleARN builds the canonical scanner role ARN for a customer account
// under the fixed naming convention.
func RoleARN(awsAccountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", awsAccountID, roleName)
}
