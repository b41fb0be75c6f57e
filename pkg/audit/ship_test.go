package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

type fakeShipper struct {
	mu     sync.Mutex
	keys   []string
	failOn string
}

func (f *fakeShipper) Put(_ context.Context, _, key, _ string, _ s3gw.ProgressFunc) (*s3gw.PutResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && key == f.failOn {
		return nil, errors.New("upload refused")
	}
	f.keys = append(f.keys, key)
	return &s3gw.PutResult{}, nil
}

func (f *fakeShipper) shipped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.keys...)
	sort.Strings(out)
	return out
}

func seedLogs(t *testing.T) *Log {
	t.Helper()
	l := newTestLog(t)
	at(l, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))
	require.NoError(t, l.Write(LevelInfo, CategoryApp, "e", "m", nil))
	_, err := l.SaveJobCSV("abcd1234", nil, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return l
}

func TestShipUploadsEverythingOnFirstRun(t *testing.T) {
	t.Parallel()
	l := seedLogs(t)
	shipper := &fakeShipper{}

	res, err := l.Ship(context.Background(), shipper, "bucket", "logs/")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 0, res.Skipped)

	assert.Equal(t, []string{
		"logs/csv/year=2026/month=02/day=08/upload-summary-100000-abcd1234.csv",
		"logs/json/year=2026/month=02/day=08/events.jsonl",
	}, shipper.shipped())

	// Sidecar recorded both files.
	_, err = os.Stat(filepath.Join(l.Dir(), syncStateFile))
	assert.NoError(t, err)
}

func TestShipSkipsUnchangedFiles(t *testing.T) {
	t.Parallel()
	l := seedLogs(t)
	shipper := &fakeShipper{}
	ctx := context.Background()

	_, err := l.Ship(ctx, shipper, "bucket", "logs/")
	require.NoError(t, err)

	res, err := l.Ship(ctx, shipper, "bucket", "logs/")
	require.NoError(t, err)
	// The first run's own completion entry grew the journal, so the
	// journal re-ships; the CSV is unchanged and skips.
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 1, res.Skipped)
}

func TestShipReshipsGrownJournal(t *testing.T) {
	t.Parallel()
	l := seedLogs(t)
	shipper := &fakeShipper{}
	ctx := context.Background()

	_, err := l.Ship(ctx, shipper, "bucket", "logs/")
	require.NoError(t, err)

	require.NoError(t, l.Write(LevelInfo, CategoryApp, "more", "m", nil))

	res, err := l.Ship(ctx, shipper, "bucket", "logs/")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Synced, 1, "grown journal ships again")
}

func TestShipRecordsFailuresAndKeepsGoing(t *testing.T) {
	t.Parallel()
	l := seedLogs(t)
	shipper := &fakeShipper{
		failOn: "logs/json/year=2026/month=02/day=08/events.jsonl",
	}

	res, err := l.Ship(context.Background(), shipper, "bucket", "logs/")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Synced, "CSV still ships")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "events.jsonl")

	// The failed file is not marked synced; the next run retries it.
	shipper2 := &fakeShipper{}
	res, err = l.Ship(context.Background(), shipper2, "bucket", "logs/")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Synced, 1)
}

func TestShipCorruptSidecarResets(t *testing.T) {
	t.Parallel()
	l := seedLogs(t)
	require.NoError(t,
		os.WriteFile(filepath.Join(l.Dir(), syncStateFile), []byte("{broken"), 0o644))

	res, err := l.Ship(context.Background(), &fakeShipper{}, "bucket", "logs/")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced, "corrupt state ships everything fresh")
}
