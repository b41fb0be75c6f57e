package s3

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ValidationResult reports whether a bucket is reachable with the current
// credentials. A failed check is data, not an error: the settings API
// returns it with a 200 so clients can show the message.
type ValidationResult struct {
	Success bool   `json:"success"`
	Bucket  string `json:"bucket"`
	Error   string `json:"error,omitempty"`
}

// ValidateBucket checks that the bucket exists and is accessible.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - bucket: S3 bucket name
//
// Returns:
//   - ValidationResult: Success flag plus a user-facing error message
func (g *Gateway) ValidateBucket(ctx context.Context, bucket string) ValidationResult {
	start := time.Now()
	_, err := g.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucket),
	})
	g.observe("HeadBucket", start, err)

	if err == nil {
		return ValidationResult{Success: true, Bucket: bucket}
	}

	switch {
	case isNotFoundError(err):
		return ValidationResult{Bucket: bucket, Error: fmt.Sprintf("Bucket '%s' does not exist", bucket)}
	case isAccessDeniedError(err):
		return ValidationResult{Bucket: bucket, Error: fmt.Sprintf("Access denied to bucket '%s'", bucket)}
	case IsCredentialsError(err):
		return ValidationResult{Bucket: bucket, Error: "AWS credentials not found"}
	default:
		return ValidationResult{Bucket: bucket, Error: err.Error()}
	}
}

// Validate builds a gateway for the given profile/region and checks bucket
// access with it. Client construction failures are folded into the result
// the same way access failures are.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - profile: AWS shared-config profile name
//   - region: AWS region
//   - bucket: S3 bucket name
//
// Returns:
//   - ValidationResult: Success flag plus a user-facing error message
func Validate(ctx context.Context, profile, region, bucket string) ValidationResult {
	g, err := New(ctx, profile, region)
	if err != nil {
		if IsCredentialsError(err) {
			return ValidationResult{Bucket: bucket, Error: "AWS credentials not found"}
		}
		return ValidationResult{Bucket: bucket, Error: err.Error()}
	}
	return g.ValidateBucket(ctx, bucket)
}
