package cache

import "time"

// S3File is one cached fact about an object key: whether it existed in the
// bucket last time anyone checked, and which local file it corresponds to.
//
// Rows are written from three places: analysis duplicate checks, completed
// uploads, and bucket reconciliation. The (bucket, filename, file_size)
// index serves the pre-filter and delete-scan lookups that run before an
// object key is known.
type S3File struct {
	ID           uint      `gorm:"primaryKey"`
	Bucket       string    `gorm:"not null;uniqueIndex:idx_bucket_path,priority:1;index:idx_bucket;index:idx_bucket_filename,priority:1"`
	S3Path       string    `gorm:"column:s3_path;not null;uniqueIndex:idx_bucket_path,priority:2"`
	Filename     string    `gorm:"index:idx_bucket_filename,priority:2;default:''"`
	FileSize     int64     `gorm:"index:idx_bucket_filename,priority:3;default:0"`
	CachedAt     time.Time `gorm:"autoCreateTime:false"`
	LastVerified time.Time `gorm:"autoCreateTime:false"`
	FileExists   bool      `gorm:"column:file_exists;default:true"`
}

// TableName keeps the on-disk schema compatible with earlier releases.
func (S3File) TableName() string {
	return "s3_files"
}

// CacheMetadata tracks per-bucket reconciliation state.
type CacheMetadata struct {
	Bucket               string `gorm:"primaryKey"`
	LastFullSync         *time.Time
	LastSyncFilesInS3    int64 `gorm:"column:last_sync_files_in_s3;default:0"`
	LastSyncFilesRemoved int64 `gorm:"default:0"`
}

// TableName keeps the on-disk schema compatible with earlier releases.
func (CacheMetadata) TableName() string {
	return "cache_metadata"
}

// allModels returns every model migrated at startup.
func allModels() []any {
	return []any{&S3File{}, &CacheMetadata{}}
}
