package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Stats summarizes the cache contents for the settings surface and the CLI.
type Stats struct {
	TotalEntries         int64      `json:"total_entries"`
	ExistsCount          int64      `json:"exists_count"`
	NotExistsCount       int64      `json:"not_exists_count"`
	ExpiredCount         int64      `json:"expired_count"`
	OldestEntry          *time.Time `json:"oldest_entry"`
	NewestVerification   *time.Time `json:"newest_verification"`
	Bucket               string     `json:"bucket,omitempty"`
	TTLSeconds           int64      `json:"ttl_seconds"`
	LastFullSync         *time.Time `json:"last_full_sync"`
	LastSyncFilesRemoved int64      `json:"last_sync_files_removed"`
}

// GetStats summarizes cache contents, optionally scoped to one bucket
// (empty bucket means all rows).
//
// Parameters:
//   - ctx: Context for cancellation
//   - bucket: Bucket to scope to, or "" for everything
//
// Returns:
//   - *Stats: Row counts, staleness, and last reconciliation metadata
//   - error: Database failure
func (c *Cache) GetStats(ctx context.Context, bucket string) (*Stats, error) {
	stats := &Stats{
		Bucket:     bucket,
		TTLSeconds: int64(c.ttl.Seconds()),
	}

	scoped := func() *gorm.DB {
		q := c.db.WithContext(ctx).Model(&S3File{})
		if bucket != "" {
			q = q.Where("bucket = ?", bucket)
		}
		return q
	}

	if err := scoped().Count(&stats.TotalEntries).Error; err != nil {
		return nil, fmt.Errorf("cache stats failed: %w", err)
	}
	if err := scoped().Where("file_exists = ?", true).Count(&stats.ExistsCount).Error; err != nil {
		return nil, fmt.Errorf("cache stats failed: %w", err)
	}
	stats.NotExistsCount = stats.TotalEntries - stats.ExistsCount

	cutoff := time.Now().UTC().Add(-c.ttl)
	if err := scoped().Where("last_verified < ?", cutoff).Count(&stats.ExpiredCount).Error; err != nil {
		return nil, fmt.Errorf("cache stats failed: %w", err)
	}

	if stats.TotalEntries > 0 {
		var bounds struct {
			Oldest time.Time
			Newest time.Time
		}
		err := scoped().
			Select("MIN(cached_at) AS oldest, MAX(last_verified) AS newest").
			Scan(&bounds).Error
		if err != nil {
			return nil, fmt.Errorf("cache stats failed: %w", err)
		}
		stats.OldestEntry = &bounds.Oldest
		stats.NewestVerification = &bounds.Newest
	}

	if bucket != "" {
		var meta CacheMetadata
		err := c.db.WithContext(ctx).Where("bucket = ?", bucket).First(&meta).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cache stats failed: %w", err)
		}
		if err == nil {
			stats.LastFullSync = meta.LastFullSync
			stats.LastSyncFilesRemoved = meta.LastSyncFilesRemoved
		}
	}

	return stats, nil
}
