package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	// uploadPartSize is the multipart part size. Recordings are routinely
	// multiple gigabytes, so parts stay well clear of the 10,000-part limit.
	uploadPartSize = 8 * 1024 * 1024

	// uploadConcurrency is the number of parts uploaded in parallel per file.
	uploadConcurrency = 4
)

// ProgressFunc receives upload progress. uploaded counts bytes handed to
// the uploader so far; it never decreases and never exceeds total.
type ProgressFunc func(uploaded, total int64)

// PutResult reports a completed upload.
type PutResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

// Put uploads a local file, switching to multipart for large files.
//
// Progress is reported as bytes are consumed by the uploader, which runs a
// little ahead of bytes acknowledged by S3. Callers treat the file as
// uploaded only when Put returns.
//
// Parameters:
//   - ctx: Context for cancellation. Cancelling aborts the transfer.
//   - bucket: Destination bucket
//   - key: Destination object key
//   - localPath: File to upload
//   - progress: Progress callback (may be nil)
//
// Returns:
//   - *PutResult: Bucket, key, size, and ETag of the stored object
//   - error: Local I/O error or S3 failure
func (g *Gateway) Put(ctx context.Context, bucket, key, localPath string, progress ProgressFunc) (*PutResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() {
		_ = f.Close()
	}()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()

	// The body is a plain reader, not a ReadSeeker, so the uploader buffers
	// parts sequentially and the progress callback sees each byte once.
	body := &progressReader{r: f, total: size, callback: progress}

	uploader := manager.NewUploader(g.api, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
		u.Concurrency = uploadConcurrency
	})

	start := time.Now()
	out, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	g.observe("Upload", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}

	if g.metrics != nil {
		g.metrics.RecordBytes("Upload", size)
	}

	return &PutResult{
		Bucket: bucket,
		Key:    key,
		Size:   size,
		ETag:   strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

// progressReader reports cumulative bytes read to a callback.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	callback ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.callback != nil {
			p.callback(p.read, p.total)
		}
	}
	return n, err
}
