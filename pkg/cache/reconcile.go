package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// ObjectLister lists every object under a prefix. *s3.Gateway satisfies it;
// tests substitute a fake.
type ObjectLister interface {
	List(ctx context.Context, bucket, prefix string) ([]s3gw.ObjectInfo, error)
}

// ReconcileResult reports the outcome of a bucket reconciliation.
type ReconcileResult struct {
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	FilesInS3    int64  `json:"files_in_s3"`
	FilesUpdated int64  `json:"files_updated"`
	FilesRemoved int64  `json:"files_removed"`
}

// Reconcile replaces the cache's view of a bucket prefix with the store's.
//
// Every listed object is upserted with file_exists=true. Cached rows under
// the prefix that the listing did not return are tombstoned
// (file_exists=false), so later by-key lookups answer ExistsNo without an
// S3 round-trip until an upload resurrects them. Per-bucket sync metadata
// records when the reconciliation ran and what it found.
//
// The operation is idempotent: running it twice against an unchanged bucket
// leaves the same rows.
//
// Parameters:
//   - ctx: Context for cancellation; aborts between listing pages
//   - lister: Object store listing source
//   - bucket: S3 bucket name
//   - prefix: Key prefix ("" reconciles the whole bucket)
//
// Returns:
//   - *ReconcileResult: Counts of listed, upserted, and tombstoned keys
//   - error: Listing or database failure
func (c *Cache) Reconcile(ctx context.Context, lister ObjectLister, bucket, prefix string) (*ReconcileResult, error) {
	start := time.Now()
	result, err := c.reconcile(ctx, lister, bucket, prefix)
	if c.metrics != nil {
		var inS3, removed int64
		if result != nil {
			inS3, removed = result.FilesInS3, result.FilesRemoved
		}
		c.metrics.ObserveReconcile(time.Since(start), inS3, removed, err)
	}
	return result, err
}

func (c *Cache) reconcile(ctx context.Context, lister ObjectLister, bucket, prefix string) (*ReconcileResult, error) {
	objects, err := lister.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket for reconciliation: %w", err)
	}

	listed := make(map[string]struct{}, len(objects))
	entries := make([]Entry, 0, len(objects))
	for _, obj := range objects {
		if obj.Key == "" {
			continue
		}
		listed[obj.Key] = struct{}{}
		entries = append(entries, Entry{
			S3Path:   obj.Key,
			Exists:   true,
			Filename: baseName(obj.Key),
			FileSize: obj.Size,
		})
	}

	result := &ReconcileResult{
		Bucket:    bucket,
		Prefix:    prefix,
		FilesInS3: int64(len(listed)),
	}

	now := time.Now().UTC()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entries) > 0 {
			if err := c.upsert(tx, bucket, entries, now); err != nil {
				return err
			}
			result.FilesUpdated = int64(len(entries))
		}

		// Tombstone cached keys the listing no longer contains.
		var cached []string
		q := tx.Model(&S3File{}).
			Where("bucket = ? AND file_exists = ?", bucket, true)
		if prefix != "" {
			q = q.Where(`s3_path LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
		}
		if err := q.Pluck("s3_path", &cached).Error; err != nil {
			return fmt.Errorf("failed to read cached keys: %w", err)
		}

		var gone []string
		for _, path := range cached {
			if _, ok := listed[path]; !ok {
				gone = append(gone, path)
			}
		}
		if len(gone) > 0 {
			if err := tx.Model(&S3File{}).
				Where("bucket = ? AND s3_path IN ?", bucket, gone).
				Updates(map[string]any{
					"file_exists":   false,
					"last_verified": now,
				}).Error; err != nil {
				return fmt.Errorf("failed to tombstone removed keys: %w", err)
			}
			result.FilesRemoved = int64(len(gone))
		}

		meta := CacheMetadata{
			Bucket:               bucket,
			LastFullSync:         &now,
			LastSyncFilesInS3:    result.FilesInS3,
			LastSyncFilesRemoved: result.FilesRemoved,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_full_sync", "last_sync_files_in_s3", "last_sync_files_removed",
			}),
		}).Create(&meta).Error; err != nil {
			return fmt.Errorf("failed to record sync metadata: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// baseName returns the last path segment of an object key.
func baseName(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// escapeLike escapes LIKE metacharacters in a prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
