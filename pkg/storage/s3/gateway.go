// Package s3 implements the S3 gateway for the MODAQ uploader.
//
// The gateway wraps the AWS SDK with the handful of operations the upload
// and delete engines need: existence checks, metadata reads, managed
// uploads with progress, flat listings for cache reconciliation, deletes,
// and bucket validation. Credentials come from the shared AWS config files
// (~/.aws/credentials, ~/.aws/config) via a named profile, the same way
// operators configure the rest of their AWS tooling.
package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// API captures the subset of the Amazon S3 API the gateway uses.
// *s3.Client satisfies it; tests substitute a stub.
type API interface {
	manager.UploadAPIClient

	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Metrics records gateway operation outcomes. Implementations must treat
// a nil receiver as a no-op so disabled metrics cost nothing.
type S3Metrics interface {
	// ObserveOperation records an S3 operation with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred by an operation.
	RecordBytes(operation string, bytes int64)
}

// Gateway performs S3 operations against buckets named per call.
//
// A gateway is built for one profile/region pair. Engines construct a fresh
// gateway per job so settings changes apply to the next job without a
// restart.
//
// Thread Safety:
// The gateway is safe for concurrent use by multiple goroutines.
type Gateway struct {
	api     API
	metrics S3Metrics
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithMetrics attaches a metrics collector to the gateway.
// Passing nil disables metrics (the default).
func WithMetrics(m S3Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New creates a gateway using the given AWS shared-config profile and region.
//
// The client resolves credentials the standard way (shared config files,
// environment, IMDS). The profile must exist in ~/.aws/credentials or
// ~/.aws/config; IsCredentialsError reports resolution failures.
//
// Parameters:
//   - ctx: Context for config resolution
//   - profile: AWS shared-config profile name ("" uses the default chain)
//   - region: AWS region ("" defers to the profile or environment)
//   - opts: Optional gateway settings
//
// Returns:
//   - *Gateway: Configured gateway
//   - error: Credential or shared-config resolution error
func New(ctx context.Context, profile, region string, opts ...Option) (*Gateway, error) {
	var loadOpts []func(*config.LoadOptions) error
	if profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(profile))
	}
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for profile %q: %w", profile, err)
	}

	return NewWithClient(s3.NewFromConfig(cfg), opts...), nil
}

// NewWithClient wraps an existing S3 client.
//
// Parameters:
//   - client: S3 API client (usually *s3.Client)
//   - opts: Optional gateway settings
func NewWithClient(client API, opts ...Option) *Gateway {
	g := &Gateway{api: client}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// observe reports one operation to the metrics collector, if any.
func (g *Gateway) observe(operation string, start time.Time, err error) {
	if g.metrics != nil {
		g.metrics.ObserveOperation(operation, time.Since(start), err)
	}
}
