// Package jobs drives upload and delete work through their state
// machines.
//
// The upload engine derives each recording's object key, deduplicates
// against the cache and the store, and streams files to S3 on a small I/O
// pool while MCAP parsing runs on its own CPU pool. The delete engine
// verifies local files against their stored objects (size always, MD5
// when the ETag allows) before any unlink happens.
//
// Engines keep their jobs in process-wide maps guarded by one mutex;
// per-job mutation happens under the job's own mutex inside workers.
package jobs

import (
	"context"
	"runtime"
	"time"

	"github.com/modaq/uploader/pkg/cache"
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// Store is the object-store surface the engines use. *s3.Gateway
// satisfies it; tests substitute fakes.
type Store interface {
	Head(ctx context.Context, bucket, key string) (bool, error)
	HeadMetadata(ctx context.Context, bucket, key string) (*s3gw.ObjectInfo, error)
	Put(ctx context.Context, bucket, key, localPath string, progress s3gw.ProgressFunc) (*s3gw.PutResult, error)
}

// StoreFactory builds a Store for the given credentials profile. Factory
// failure fails every unstarted file in the calling job.
type StoreFactory func(ctx context.Context, profile, region string) (Store, error)

// DefaultStoreFactory constructs a real S3 gateway.
func DefaultStoreFactory(ctx context.Context, profile, region string) (Store, error) {
	return s3gw.New(ctx, profile, region)
}

// DedupCache is the cache surface the engines consult. *cache.Cache
// satisfies it.
type DedupCache interface {
	CheckPath(ctx context.Context, bucket, s3Path string) (cache.Existence, error)
	CheckByFilename(ctx context.Context, bucket, filename string, fileSize int64) (bool, error)
	GetUploadedFileInfo(ctx context.Context, bucket, filename string, fileSize int64) (*cache.UploadedFile, error)
	Update(ctx context.Context, bucket string, entry cache.Entry) error
}

// ParseFunc extracts a recording's earliest data timestamp.
type ParseFunc func(path string) (time.Time, error)

// Target names where a job's objects live.
type Target struct {
	Profile string
	Region  string
	Bucket  string
}

// Metrics receives engine observations. A nil Metrics drops them.
type Metrics interface {
	// RecordFileUpload observes one finished file transfer.
	RecordFileUpload(status string, bytes int64, duration time.Duration)
	// RecordJob observes a terminal upload job.
	RecordJob(status string, files int)
	// RecordDeletePhase observes one delete phase for one job.
	RecordDeletePhase(phase string, duration time.Duration)
}

const (
	// DefaultIOWorkers bounds concurrent HEAD/PUT calls per job.
	DefaultIOWorkers = 4
	// DefaultJobMaxAge is how long terminal jobs linger before the
	// janitor evicts them.
	DefaultJobMaxAge = time.Hour
)

// cpuWorkerCount sizes the parse pool: every core but one, at least one.
func cpuWorkerCount() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}
