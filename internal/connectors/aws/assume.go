package aws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

var (
	// ErrInvalidRoleARN rejects role ARNs outside the allow-listed naming
	// convention before any network call is made.
	ErrInvalidRoleARN = errors.New("role arn does not match the scanner role pattern")

	// ErrAssumeRole wraps provider refusals: trust policy mismatch, bad
	// external id, throttling that outlived the retryer. Fatal for a scan.
	ErrAssumeRole = errors.New("role assumption failed")
)

// scanSessionPolicy caps the assumed session at read-only discovery calls
// regardless of what the customer's role grants.
const scanSessionPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "ReadOnlyDiscovery",
      "Effect": "Allow",
      "Action": [
        "ec2:DescribeVolumes",
        "ec2:DescribeSnapshots",
        "ec2:DescribeInstances"
      ],
      "Resource": "*"
    }
  ]
}`

// Assumer exchanges a customer role ARN plus external id for short-lived
// scoped credentials.
type Assumer struct {
	client      STSClient
	rolePattern *regexp.Regexp
	duration    time.Duration
	logger      *slog.Logger
}

// NewAssumer builds an assumer on the scanner's own AWS identity. The STS
// client retries throttle-class failures with bounded exponential backoff;
// denials and parameter errors fail immediately.
func NewAssumer(ctx context.Context, region, roleName string, duration time.Duration, logger *slog.Logger) (*Assumer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		o.RetryMode = aws.RetryModeStandard
		o.RetryMaxAttempts = 3
	})

	return NewAssumerWithClient(client, roleName, duration, logger), nil
}

// NewAssumerWithClient wires an explicit STS client, which is how tests
// substitute a fake.
func NewAssumerWithClient(client STSClient, roleName string, duration time.Duration, logger *slog.Logger) *Assumer {
	if duration <= 0 {
		duration = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	pattern := regexp.MustCompile(`^arn:aws:iam::\d{12}:role/` + regexp.QuoteMeta(roleName) + `$`)

	return &Assumer{
		client:      client,
		rolePattern: pattern,
		duration:    duration,
		logger:      logger,
	}
}

// Assume requests temporary credentials for one scan session. The inline
// session policy and bounded lifetime apply on top of whatever the
// customer's role grants. Credentials are scan-local; callers must not
// reuse them past their expiry.
func (a *Assumer) Assume(ctx context.Context, roleARN, externalID, sessionLabel string) (aws.Credentials, error) {
	if !a.rolePattern.MatchString(roleARN) {
		return aws.Credentials{}, fmt.Errorf("%w: %q", ErrInvalidRoleARN, roleARN)
	}

	out, err := a.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionLabel),
		ExternalId:      aws.String(externalID),
		DurationSeconds: aws.Int32(int32(a.duration.Seconds())),
		Policy:          aws.String(scanSessionPolicy),
	})
	if err != nil {
		a.logger.Warn("role assumption refused",
			"role_arn", roleARN,
			"session", sessionLabel,
			"error", err)
		return aws.Credentials{}, fmt.Errorf("%w: %w", ErrAssumeRole, err)
	}
	if out.Credentials == nil {
		return aws.Credentials{}, fmt.Errorf("%w: response carried no credentials", ErrAssumeRole)
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		CanExpire:       true,
		Expires:         aws.ToTime(out.Credentials.Expiration),
		Source:          "EBSightAssumeRole",
	}

	a.logger.Info("assumed scanner role",
		"role_arn", roleARN,
		"session", sessionLabel,
		"expires", creds.Expires)

	return creds, nil
}
