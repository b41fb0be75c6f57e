package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(Config{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ============================================
// BY-KEY LOOKUPS
// ============================================

func TestCheckPathUnknownWhenNeverCached(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	got, err := c.CheckPath(context.Background(), "bucket", "year=2024/month=06/day=15/hour=14/minute=30/a.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsUnknown, got)
}

func TestCheckPathReturnsCachedAnswer(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/yes.mcap", Exists: true, Filename: "yes.mcap", FileSize: 10}))
	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/no.mcap", Exists: false, Filename: "no.mcap", FileSize: 20}))

	got, err := c.CheckPath(ctx, "bucket", "k/yes.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)

	got, err = c.CheckPath(ctx, "bucket", "k/no.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsNo, got)
}

func TestCheckPathExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/old.mcap", Exists: true}))

	// Age the row past the TTL.
	stale := time.Now().UTC().Add(-c.TTL() - time.Minute)
	require.NoError(t, c.db.Model(&S3File{}).
		Where("bucket = ? AND s3_path = ?", "bucket", "k/old.mcap").
		Update("last_verified", stale).Error)

	got, err := c.CheckPath(ctx, "bucket", "k/old.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsUnknown, got, "expired rows must not answer")
}

func TestCheckPathIsScopedByBucket(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket-a", Entry{S3Path: "k/a.mcap", Exists: true}))

	got, err := c.CheckPath(ctx, "bucket-b", "k/a.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsUnknown, got)
}

// ============================================
// BY-FILENAME LOOKUPS (no TTL)
// ============================================

func TestCheckByFilenameIgnoresTTL(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{
		S3Path: "k/f.mcap", Exists: true, Filename: "f.mcap", FileSize: 1234,
	}))

	// Age the row far past the TTL; the filename lookup must still hit.
	stale := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, c.db.Model(&S3File{}).
		Where("bucket = ?", "bucket").
		Update("last_verified", stale).Error)

	uploaded, err := c.CheckByFilename(ctx, "bucket", "f.mcap", 1234)
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestCheckByFilenameRequiresExactSize(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{
		S3Path: "k/f.mcap", Exists: true, Filename: "f.mcap", FileSize: 1234,
	}))

	uploaded, err := c.CheckByFilename(ctx, "bucket", "f.mcap", 999)
	require.NoError(t, err)
	assert.False(t, uploaded)
}

func TestCheckByFilenameIgnoresTombstones(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{
		S3Path: "k/gone.mcap", Exists: false, Filename: "gone.mcap", FileSize: 5,
	}))

	uploaded, err := c.CheckByFilename(ctx, "bucket", "gone.mcap", 5)
	require.NoError(t, err)
	assert.False(t, uploaded)
}

func TestGetUploadedFileInfo(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{
		S3Path: "year=2024/month=06/day=15/hour=14/minute=30/f.mcap",
		Exists: true, Filename: "f.mcap", FileSize: 77,
	}))

	info, err := c.GetUploadedFileInfo(ctx, "bucket", "f.mcap", 77)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "year=2024/month=06/day=15/hour=14/minute=30/f.mcap", info.S3Path)
	assert.Equal(t, int64(77), info.FileSize)

	info, err = c.GetUploadedFileInfo(ctx, "bucket", "missing.mcap", 77)
	require.NoError(t, err)
	assert.Nil(t, info)
}

// ============================================
// UPSERT SEMANTICS
// ============================================

func TestUpdatePreservesCachedAt(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/f.mcap", Exists: false}))

	var first S3File
	require.NoError(t, c.db.Where("s3_path = ?", "k/f.mcap").First(&first).Error)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/f.mcap", Exists: true, Filename: "f.mcap", FileSize: 9}))

	var second S3File
	require.NoError(t, c.db.Where("s3_path = ?", "k/f.mcap").First(&second).Error)

	assert.Equal(t, first.ID, second.ID, "upsert must not create a second row")
	assert.Equal(t, first.CachedAt.Unix(), second.CachedAt.Unix(), "cached_at records first sighting")
	assert.True(t, second.LastVerified.After(first.LastVerified), "last_verified refreshes on update")
	assert.True(t, second.FileExists)
}

func TestUpdateThenCheckByFilenameRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{
		S3Path: "k/rt.mcap", Exists: true, Filename: "rt.mcap", FileSize: 42,
	}))

	uploaded, err := c.CheckByFilename(ctx, "bucket", "rt.mcap", 42)
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestBulkUpdate(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	entries := []Entry{
		{S3Path: "k/a.mcap", Exists: true, Filename: "a.mcap", FileSize: 1},
		{S3Path: "k/b.mcap", Exists: true, Filename: "b.mcap", FileSize: 2},
		{S3Path: "k/c.mcap", Exists: false, Filename: "c.mcap", FileSize: 3},
	}
	require.NoError(t, c.BulkUpdate(ctx, "bucket", entries))

	stats, err := c.GetStats(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalEntries)
	assert.Equal(t, int64(2), stats.ExistsCount)
	assert.Equal(t, int64(1), stats.NotExistsCount)
}

// ============================================
// INVALIDATION AND STATS
// ============================================

func TestInvalidateBucket(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.BulkUpdate(ctx, "keep", []Entry{{S3Path: "k/1.mcap", Exists: true}}))
	require.NoError(t, c.BulkUpdate(ctx, "drop", []Entry{
		{S3Path: "k/1.mcap", Exists: true},
		{S3Path: "k/2.mcap", Exists: true},
	}))

	deleted, err := c.InvalidateBucket(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	stats, err := c.GetStats(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalEntries)

	stats, err = c.GetStats(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
}

func TestGetStatsEmpty(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	stats, err := c.GetStats(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalEntries)
	assert.Nil(t, stats.OldestEntry)
	assert.Nil(t, stats.LastFullSync)
	assert.Equal(t, int64(DefaultTTL.Seconds()), stats.TTLSeconds)
}

// ============================================
// CONCURRENCY
// ============================================

func TestConcurrentUpsertsLeaveOneRow(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	const writers = 8
	done := make(chan error, writers)
	for i := 0; i < writers; i++ {
		go func() {
			done <- c.Update(ctx, "bucket", Entry{
				S3Path: "k/contended.mcap", Exists: true, Filename: "contended.mcap", FileSize: 100,
			})
		}()
	}
	for i := 0; i < writers; i++ {
		require.NoError(t, <-done)
	}

	var count int64
	require.NoError(t, c.db.Model(&S3File{}).
		Where("bucket = ? AND s3_path = ?", "bucket", "k/contended.mcap").
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
