// Package cache persists what the uploader knows about the objects in a
// bucket, so repeat uploads of the same recordings skip both MCAP parsing
// and S3 round-trips.
//
// Two lookups with deliberately different freshness rules:
//
//   - By object key: answers expire after a TTL, because another writer (or
//     a lifecycle rule) can create or delete objects behind our back.
//   - By (filename, size): never expires. A row with file_exists=true by
//     this lookup means this station uploaded that exact file, and that
//     fact does not go stale.
//
// The store is SQLite via GORM, the same arrangement the rest of the
// service uses for durable state. WAL mode plus a busy timeout makes it
// safe for the engines' worker pools to read and write concurrently.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultTTL is how long a cached by-key existence answer stays fresh.
const DefaultTTL = time.Hour

// Existence is a three-valued answer from a by-key lookup.
type Existence int

const (
	// ExistsUnknown means the cache has no fresh answer; ask S3.
	ExistsUnknown Existence = iota

	// ExistsNo means the object was absent last time it was checked.
	ExistsNo

	// ExistsYes means the object was present last time it was checked.
	ExistsYes
)

func (e Existence) String() string {
	switch e {
	case ExistsYes:
		return "exists"
	case ExistsNo:
		return "not-exists"
	default:
		return "unknown"
	}
}

// Entry is one upsert payload for Update and BulkUpdate.
type Entry struct {
	S3Path   string
	Exists   bool
	Filename string
	FileSize int64
}

// UploadedFile describes a cached upload found by filename and size.
type UploadedFile struct {
	S3Path   string `json:"s3_path"`
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
}

// Metrics records cache lookup outcomes. Implementations must treat a nil
// receiver as a no-op so disabled metrics cost nothing.
type Metrics interface {
	// RecordLookup records one lookup with its kind ("path" or "filename")
	// and outcome ("hit", "miss", "expired").
	RecordLookup(kind, outcome string)

	// ObserveReconcile records a bucket reconciliation run.
	ObserveReconcile(duration time.Duration, filesInS3, filesRemoved int64, err error)
}

// Config configures the cache store.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string

	// TTL for by-key lookups. Zero means DefaultTTL.
	TTL time.Duration

	// BusyTimeout is the SQLite busy timeout. Zero means 30s.
	BusyTimeout time.Duration
}

// Cache is the persistent S3 inventory cache.
//
// Thread Safety:
// All methods are safe for concurrent use. GORM pools connections
// per-goroutine and the WAL journal permits parallel readers.
type Cache struct {
	db      *gorm.DB
	ttl     time.Duration
	metrics Metrics
}

// Option customizes a Cache.
type Option func(*Cache)

// WithMetrics attaches a metrics collector. Passing nil disables metrics
// (the default).
func WithMetrics(m Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New opens (creating if necessary) the cache database and migrates its
// schema.
//
// Parameters:
//   - cfg: Database path, TTL, and busy timeout
//   - opts: Optional cache settings
//
// Returns:
//   - *Cache: Ready-to-use cache
//   - error: Filesystem or SQLite failure
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Path == "" {
		return nil, errors.New("cache database path is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 30 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// WAL for concurrent readers with a single writer; busy_timeout so the
	// engines' worker pools queue on the write lock instead of erroring.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	c := &Cache{db: db, ttl: cfg.TTL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured by-key lookup TTL.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Close releases the underlying database connections.
func (c *Cache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CheckPath looks up a cached existence answer for an object key.
//
// Returns ExistsUnknown when the key was never cached or the row is older
// than the TTL; callers then fall back to an S3 HEAD and write the result
// back with Update.
//
// Parameters:
//   - ctx: Context for cancellation
//   - bucket: S3 bucket name
//   - s3Path: Object key
//
// Returns:
//   - Existence: ExistsYes, ExistsNo, or ExistsUnknown
//   - error: Database failure
func (c *Cache) CheckPath(ctx context.Context, bucket, s3Path string) (Existence, error) {
	var row S3File
	err := c.db.WithContext(ctx).
		Select("file_exists", "last_verified").
		Where("bucket = ? AND s3_path = ?", bucket, s3Path).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.recordLookup("path", "miss")
		return ExistsUnknown, nil
	}
	if err != nil {
		return ExistsUnknown, fmt.Errorf("cache path lookup failed: %w", err)
	}

	if time.Since(row.LastVerified) > c.ttl {
		c.recordLookup("path", "expired")
		return ExistsUnknown, nil
	}

	c.recordLookup("path", "hit")
	if row.FileExists {
		return ExistsYes, nil
	}
	return ExistsNo, nil
}

// CheckByFilename reports whether any cached row says a file with this name
// and size exists in the bucket.
//
// No TTL applies: an upload this station performed is ground truth, unlike
// a by-key non-existence answer which can go stale.
//
// Parameters:
//   - ctx: Context for cancellation
//   - bucket: S3 bucket name
//   - filename: Local file basename
//   - fileSize: Local file size in bytes
//
// Returns:
//   - bool: true when a matching file_exists=true row is present
//   - error: Database failure
func (c *Cache) CheckByFilename(ctx context.Context, bucket, filename string, fileSize int64) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).
		Model(&S3File{}).
		Where("bucket = ? AND filename = ? AND file_size = ? AND file_exists = ?",
			bucket, filename, fileSize, true).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("cache filename lookup failed: %w", err)
	}

	if count > 0 {
		c.recordLookup("filename", "hit")
		return true, nil
	}
	c.recordLookup("filename", "miss")
	return false, nil
}

// GetUploadedFileInfo returns the cached object key for an uploaded file,
// found by filename and size. Used by the delete scan to map local files
// back to their objects.
//
// Returns:
//   - *UploadedFile: The cached entry, or nil when no file_exists=true row
//     matches
//   - error: Database failure
func (c *Cache) GetUploadedFileInfo(ctx context.Context, bucket, filename string, fileSize int64) (*UploadedFile, error) {
	var row S3File
	err := c.db.WithContext(ctx).
		Select("s3_path", "filename", "file_size").
		Where("bucket = ? AND filename = ? AND file_size = ? AND file_exists = ?",
			bucket, filename, fileSize, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache uploaded-file lookup failed: %w", err)
	}

	return &UploadedFile{
		S3Path:   row.S3Path,
		Filename: row.Filename,
		FileSize: row.FileSize,
	}, nil
}

// Update upserts one cache row.
//
// An existing (bucket, s3_path) row keeps its cached_at and refreshes its
// last_verified; a new row gets both set to now.
//
// Parameters:
//   - ctx: Context for cancellation
//   - bucket: S3 bucket name
//   - entry: Key, existence, filename, and size
//
// Returns:
//   - error: Database failure
func (c *Cache) Update(ctx context.Context, bucket string, entry Entry) error {
	return c.upsert(c.db.WithContext(ctx), bucket, []Entry{entry}, time.Now().UTC())
}

// BulkUpdate upserts many cache rows in a single transaction.
func (c *Cache) BulkUpdate(ctx context.Context, bucket string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return c.upsert(tx, bucket, entries, now)
	})
}

// upsert applies the shared conflict rule: update existence, filename,
// size, and last_verified, leaving cached_at at its first-seen value.
func (c *Cache) upsert(tx *gorm.DB, bucket string, entries []Entry, now time.Time) error {
	rows := make([]S3File, len(entries))
	for i, e := range entries {
		rows[i] = S3File{
			Bucket:       bucket,
			S3Path:       e.S3Path,
			Filename:     e.Filename,
			FileSize:     e.FileSize,
			FileExists:   e.Exists,
			CachedAt:     now,
			LastVerified: now,
		}
	}

	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "bucket"}, {Name: "s3_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"file_exists", "filename", "file_size", "last_verified",
		}),
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		return fmt.Errorf("cache upsert failed: %w", err)
	}
	return nil
}

// InvalidateBucket deletes every row for a bucket.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: Database failure
func (c *Cache) InvalidateBucket(ctx context.Context, bucket string) (int64, error) {
	res := c.db.WithContext(ctx).Where("bucket = ?", bucket).Delete(&S3File{})
	if res.Error != nil {
		return 0, fmt.Errorf("cache invalidation failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (c *Cache) recordLookup(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordLookup(kind, outcome)
	}
}
