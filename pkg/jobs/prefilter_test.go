package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/recording"
)

func TestPreFilterFilenameSizeHitSkipsEverythingElse(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	dir := t.TempDir()

	p := writeRecording(t, dir, "rec_2025_01_02_03_04_05.mcap", 64)
	ts, _ := recording.TimestampFromFilename(filepath.Base(p))
	require.NoError(t, fx.cache.Update(context.Background(), "recordings", cache.Entry{
		S3Path:   recording.GenerateKey(ts, filepath.Base(p)),
		Exists:   true,
		Filename: filepath.Base(p),
		FileSize: 64,
	}))

	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{p}, fx.target, false)
	assert.Empty(t, toAnalyze)
	assert.Equal(t, 1, stats["cache_hits"])
	assert.Equal(t, 1, stats["cache_skipped"])
	assert.Equal(t, 0, stats["s3_hits"])

	statuses := stats["file_statuses"].([]map[string]any)
	require.Len(t, statuses, 1)
	assert.Equal(t, true, statuses[0]["already_uploaded"])
}

func TestPreFilterNoTimestampGoesToAnalysis(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	dir := t.TempDir()

	p := writeRecording(t, dir, "notes.mcap", 16)
	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{p}, fx.target, false)

	assert.Equal(t, []string{p}, toAnalyze)
	assert.Equal(t, 1, stats["no_timestamp"])
	assert.Equal(t, 1, stats["to_analyze"])
}

func TestPreFilterKeyedCacheNegativeStillAnalyzes(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	dir := t.TempDir()

	p := writeRecording(t, dir, "rec_2025_01_02_03_04_05.mcap", 64)
	ts, _ := recording.TimestampFromFilename(filepath.Base(p))
	key := recording.GenerateKey(ts, filepath.Base(p))
	require.NoError(t, fx.cache.Update(context.Background(), "recordings", cache.Entry{
		S3Path: key, Exists: false, Filename: filepath.Base(p), FileSize: 64,
	}))

	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{p}, fx.target, false)
	assert.Equal(t, []string{p}, toAnalyze)
	assert.Equal(t, 1, stats["cache_hits"])
	assert.Equal(t, 0, stats["cache_skipped"])
}

func TestPreFilterCacheMissFallsBackToStore(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	dir := t.TempDir()

	uploaded := writeRecording(t, dir, "rec_2025_01_02_03_04_05.mcap", 64)
	missing := writeRecording(t, dir, "rec_2025_01_02_03_14_05.mcap", 32)

	ts, _ := recording.TimestampFromFilename(filepath.Base(uploaded))
	key := recording.GenerateKey(ts, filepath.Base(uploaded))
	fx.store.add("recordings", key, 64, "abc")

	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{uploaded, missing}, fx.target, false)
	assert.Equal(t, []string{missing}, toAnalyze)
	assert.Equal(t, 1, stats["s3_hits"])

	// Both HEAD answers land in the cache for the next pass.
	existence, err := fx.cache.CheckPath(context.Background(), "recordings", key)
	require.NoError(t, err)
	assert.Equal(t, cache.ExistsYes, existence)
}

func TestPreFilterCacheOnlySkipsStore(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	fx.engine.newStore = func(context.Context, string, string) (Store, error) {
		t.Error("store must not be built in cache-only mode")
		return nil, errors.New("unreachable")
	}
	dir := t.TempDir()

	p := writeRecording(t, dir, "rec_2025_01_02_03_04_05.mcap", 64)
	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{p}, fx.target, true)

	assert.Equal(t, []string{p}, toAnalyze)
	assert.Equal(t, 0, stats["s3_hits"])
}

func TestPreFilterStoreFailureDegradesToAnalysis(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)
	fx.engine.newStore = func(context.Context, string, string) (Store, error) {
		return nil, errors.New("no credentials")
	}
	dir := t.TempDir()

	p := writeRecording(t, dir, "rec_2025_01_02_03_04_05.mcap", 64)
	toAnalyze, _ := fx.engine.PreFilter(context.Background(), []string{p}, fx.target, false)
	assert.Equal(t, []string{p}, toAnalyze)
}

func TestPreFilterIgnoresMissingPaths(t *testing.T) {
	t.Parallel()
	fx := newEngineFixture(t)

	toAnalyze, stats := fx.engine.PreFilter(context.Background(), []string{filepath.Join(t.TempDir(), "gone.mcap")}, fx.target, true)
	assert.Empty(t, toAnalyze)
	assert.Empty(t, stats["file_statuses"].([]map[string]any))
}
