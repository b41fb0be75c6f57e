package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectInfo describes an S3 object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string

	// ETag with surrounding quotes stripped. Multipart uploads keep their
	// "-<parts>" suffix, which marks the tag as unusable for MD5 comparison.
	ETag string
}

// Head checks whether an object exists.
//
// A missing object is not an error; any other failure (permissions,
// credentials, network) is.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - bucket: S3 bucket name
//   - key: S3 object key
//
// Returns:
//   - bool: true when the object exists
//   - error: Non-404 failures
func (g *Gateway) Head(ctx context.Context, bucket, key string) (bool, error) {
	start := time.Now()
	_, err := g.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && isNotFoundError(err) {
		g.observe("HeadObject", start, nil)
		return false, nil
	}
	g.observe("HeadObject", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to check s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// HeadMetadata fetches size, timestamps, and the ETag of an object.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - bucket: S3 bucket name
//   - key: S3 object key
//
// Returns:
//   - *ObjectInfo: Object metadata
//   - error: ErrObjectNotFound when missing, or the underlying S3 error
func (g *Gateway) HeadMetadata(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	start := time.Now()
	out, err := g.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	g.observe("HeadObject", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read metadata for s3://%s/%s: %w", bucket, key, err)
	}

	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// Delete removes an object. S3 treats deleting a missing key as success,
// and so does this method.
func (g *Gateway) Delete(ctx context.Context, bucket, key string) error {
	start := time.Now()
	_, err := g.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	g.observe("DeleteObject", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// List returns every object under a prefix, walking all pages.
//
// Used by cache reconciliation; prefer Head for single-object checks.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - bucket: S3 bucket name
//   - prefix: Key prefix ("" lists the whole bucket)
//
// Returns:
//   - []ObjectInfo: All matching objects
//   - error: S3 failure or context cancellation
func (g *Gateway) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	start := time.Now()

	var objects []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(g.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			g.observe("ListObjectsV2", start, err)
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			g.observe("ListObjectsV2", start, err)
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, prefix, err)
		}

		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			})
		}
	}

	g.observe("ListObjectsV2", start, nil)
	return objects, nil
}
