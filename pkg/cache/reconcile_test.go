package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

type fakeLister struct {
	objects []s3gw.ObjectInfo
	err     error
}

func (f *fakeLister) List(_ context.Context, _, _ string) ([]s3gw.ObjectInfo, error) {
	return f.objects, f.err
}

func TestReconcilePopulatesEmptyCache(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	lister := &fakeLister{objects: []s3gw.ObjectInfo{
		{Key: "year=2024/month=06/day=15/hour=14/minute=30/a.mcap", Size: 100},
		{Key: "year=2024/month=06/day=15/hour=14/minute=31/b.mcap", Size: 200},
	}}

	result, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.FilesInS3)
	assert.Equal(t, int64(2), result.FilesUpdated)
	assert.Equal(t, int64(0), result.FilesRemoved)

	got, err := c.CheckPath(ctx, "bucket", "year=2024/month=06/day=15/hour=14/minute=30/a.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)

	// Filenames are derived from the key so by-filename dedup works too.
	uploaded, err := c.CheckByFilename(ctx, "bucket", "b.mcap", 200)
	require.NoError(t, err)
	assert.True(t, uploaded)
}

func TestReconcileTombstonesMissingKeys(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.BulkUpdate(ctx, "bucket", []Entry{
		{S3Path: "k/stays.mcap", Exists: true, Filename: "stays.mcap", FileSize: 1},
		{S3Path: "k/gone.mcap", Exists: true, Filename: "gone.mcap", FileSize: 2},
	}))

	lister := &fakeLister{objects: []s3gw.ObjectInfo{{Key: "k/stays.mcap", Size: 1}}}
	result, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.FilesRemoved)

	got, err := c.CheckPath(ctx, "bucket", "k/gone.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsNo, got, "tombstoned keys answer no, not unknown")

	got, err = c.CheckPath(ctx, "bucket", "k/stays.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)
}

func TestReconcileScopedToPrefix(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.BulkUpdate(ctx, "bucket", []Entry{
		{S3Path: "year=2024/a.mcap", Exists: true},
		{S3Path: "year=2025/b.mcap", Exists: true},
	}))

	// Empty listing under year=2024 must not touch year=2025 rows.
	result, err := c.Reconcile(ctx, &fakeLister{}, "bucket", "year=2024/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.FilesRemoved)

	got, err := c.CheckPath(ctx, "bucket", "year=2025/b.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)
}

func TestReconcileResurrectsTombstones(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/back.mcap", Exists: false}))

	lister := &fakeLister{objects: []s3gw.ObjectInfo{{Key: "k/back.mcap", Size: 7}}}
	_, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)

	got, err := c.CheckPath(ctx, "bucket", "k/back.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	lister := &fakeLister{objects: []s3gw.ObjectInfo{
		{Key: "k/a.mcap", Size: 1},
		{Key: "k/b.mcap", Size: 2},
	}}

	first, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)
	second, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)

	assert.Equal(t, first.FilesInS3, second.FilesInS3)
	assert.Equal(t, int64(0), second.FilesRemoved)

	stats, err := c.GetStats(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalEntries)
}

func TestReconcileRecordsSyncMetadata(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	lister := &fakeLister{objects: []s3gw.ObjectInfo{{Key: "k/a.mcap", Size: 1}}}
	_, err := c.Reconcile(ctx, lister, "bucket", "")
	require.NoError(t, err)

	stats, err := c.GetStats(ctx, "bucket")
	require.NoError(t, err)
	require.NotNil(t, stats.LastFullSync)
	assert.Equal(t, int64(0), stats.LastSyncFilesRemoved)
}

func TestReconcileListFailureLeavesCacheUntouched(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Update(ctx, "bucket", Entry{S3Path: "k/a.mcap", Exists: true}))

	_, err := c.Reconcile(ctx, &fakeLister{err: errors.New("listing denied")}, "bucket", "")
	require.Error(t, err)

	got, err := c.CheckPath(ctx, "bucket", "k/a.mcap")
	require.NoError(t, err)
	assert.Equal(t, ExistsYes, got)
}
