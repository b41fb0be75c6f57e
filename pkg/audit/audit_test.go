package audit

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return New(t.TempDir())
}

// at pins the log's clock.
func at(l *Log, ts time.Time) {
	l.now = func() time.Time { return ts }
}

func TestWriteAppendsToDailyJournal(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	at(l, time.Date(2026, 2, 8, 14, 30, 0, 0, time.UTC))

	require.NoError(t, l.Write(LevelInfo, CategoryUpload, "upload_started", "Upload started", nil))
	require.NoError(t, l.Write(LevelError, CategoryUpload, "upload_failed", "HEAD failed",
		map[string]any{"filename": "a.mcap"}))

	path := filepath.Join(l.Dir(), "json", "year=2026", "month=02", "day=08", "events.jsonl")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)

	var first Entry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "INFO", first.Level)
	assert.Equal(t, "upload", first.Category)
	assert.Equal(t, "upload_started", first.Event)
	assert.Nil(t, first.Metadata)

	var second Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "a.mcap", second.Metadata["filename"])
}

func TestSaveJobJSONL(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	completed := time.Date(2026, 2, 8, 9, 0, 0, 0, time.UTC)

	path, err := l.SaveJobJSONL("job-abc", map[string]any{"status": "completed"}, completed)
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(l.Dir(), "json", "year=2026", "month=02", "day=08", "job-abc.jsonl"),
		path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "\n"), "single JSONL line ends with newline")

	var snap map[string]any
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, "completed", snap["status"])
}

func TestSaveJobCSV(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	completed := time.Date(2026, 2, 8, 14, 30, 22, 0, time.UTC)

	start := time.Date(2024, 6, 15, 14, 35, 0, 0, time.UTC)
	duration := 8.0
	records := []UploadRecord{
		{
			Filename:        "Bag_2024_06_15_14_35_00.mcap",
			FileSizeBytes:   10 * 1024 * 1024,
			S3Path:          "year=2024/month=06/day=15/hour=14/minute=30/Bag_2024_06_15_14_35_00.mcap",
			Status:          "completed",
			DataStartTime:   &start,
			DurationSeconds: &duration,
			IsValid:         true,
		},
		{
			Filename:      "broken.mcap",
			FileSizeBytes: 5,
			Status:        "failed",
			ErrorMessage:  "HEAD failed",
		},
	}

	path, err := l.SaveJobCSV("abcd1234-5678-90ef", records, completed)
	require.NoError(t, err)
	assert.Equal(t, "upload-summary-143022-abcd1234.csv", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvColumns, rows[0])

	completedRow := rows[1]
	assert.Equal(t, "abcd1234-5678-90ef", completedRow[0])
	assert.Equal(t, "10485760", completedRow[2])
	assert.Equal(t, "10.0 MB", completedRow[3])
	assert.Equal(t, "completed", completedRow[5])
	// 10 MiB over 8 s: 10/8*8 = 10 Mbps.
	assert.Equal(t, "10", completedRow[10])
	assert.Equal(t, "true", completedRow[12])

	failedRow := rows[2]
	assert.Equal(t, "", failedRow[9], "no duration when never uploaded")
	assert.Equal(t, "", failedRow[10])
	assert.Equal(t, "HEAD failed", failedRow[13])
}

func TestQueryFilters(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	at(l, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))

	require.NoError(t, l.Write(LevelInfo, CategoryUpload, "upload_started", "Started batch", nil))
	require.NoError(t, l.Write(LevelError, CategoryUpload, "upload_failed", "Transfer broke", nil))
	require.NoError(t, l.Write(LevelInfo, CategoryScan, "scan_started", "Scanning folder", nil))

	res, err := l.Query(QueryOptions{Level: "error"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "upload_failed", res.Entries[0].Event)

	res, err = l.Query(QueryOptions{Category: CategoryScan})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "scan_started", res.Entries[0].Event)

	res, err = l.Query(QueryOptions{Search: "BATCH"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "upload_started", res.Entries[0].Event)
}

func TestQueryNewestFirstAndPagination(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)

	base := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		at(l, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, l.Write(LevelInfo, CategoryApp, "tick", "tick", map[string]any{"i": i}))
	}

	res, err := l.Query(QueryOptions{Offset: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, float64(3), res.Entries[0].Metadata["i"], "newest first, offset skips the newest")
	assert.Equal(t, float64(2), res.Entries[1].Metadata["i"])
}

func TestQueryByDateResolvesHivePath(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)

	at(l, time.Date(2026, 2, 7, 23, 0, 0, 0, time.UTC))
	require.NoError(t, l.Write(LevelInfo, CategoryApp, "yesterday", "old", nil))
	at(l, time.Date(2026, 2, 8, 1, 0, 0, 0, time.UTC))
	require.NoError(t, l.Write(LevelInfo, CategoryApp, "today", "new", nil))

	res, err := l.Query(QueryOptions{Date: "2026-02-07"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "yesterday", res.Entries[0].Event)

	// Malformed and absent dates yield empty pages, not errors.
	res, err = l.Query(QueryOptions{Date: "not-a-date"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = l.Query(QueryOptions{Date: "2020-01-01"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
}

func TestQuerySkipsMalformedLines(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	at(l, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))

	require.NoError(t, l.Write(LevelInfo, CategoryApp, "good", "good", nil))

	path := filepath.Join(l.Dir(), "json", "year=2026", "month=02", "day=08", "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := l.Query(QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestListFiles(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	at(l, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))

	require.NoError(t, l.Write(LevelInfo, CategoryApp, "e", "m", nil))
	_, err := l.SaveJobCSV("abcd1234", nil, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	files, err := l.ListFiles()
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "jsonl", files[0].Type)
	assert.Equal(t, "2026-02-08", files[0].Date)
	assert.Equal(t, "json/year=2026/month=02/day=08/events.jsonl", files[0].RelativePath)
	assert.Positive(t, files[0].SizeBytes)
	assert.Equal(t, "csv", files[1].Type)
}

func TestStats(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)

	at(l, time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC))
	require.NoError(t, l.Write(LevelInfo, CategoryUpload, "a", "m", nil))
	at(l, time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC))
	require.NoError(t, l.Write(LevelInfo, CategoryUpload, "b", "m", nil))
	require.NoError(t, l.Write(LevelError, CategoryScan, "c", "m", nil))

	stats, err := l.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.FileCount)
	assert.Equal(t, 2, stats.LevelCounts["INFO"])
	assert.Equal(t, 1, stats.LevelCounts["ERROR"])
	assert.Equal(t, 2, stats.CategoryCounts["upload"])
	require.NotNil(t, stats.DateRange.Earliest)
	assert.Equal(t, "2026-02-07", *stats.DateRange.Earliest)
	assert.Equal(t, "2026-02-08", *stats.DateRange.Latest)
}

func TestUploadStatsAggregatesSessions(t *testing.T) {
	t.Parallel()
	l := newTestLog(t)
	completed := time.Date(2026, 2, 8, 14, 30, 22, 0, time.UTC)

	d1 := 4.0
	_, err := l.SaveJobCSV("job1", []UploadRecord{
		{Filename: "a.mcap", FileSizeBytes: 1 << 20, Status: "completed", DurationSeconds: &d1, IsValid: true},
		{Filename: "b.mcap", FileSizeBytes: 1 << 20, Status: "failed", ErrorMessage: "boom"},
		{Filename: "c.mcap", FileSizeBytes: 1 << 20, Status: "skipped", IsDuplicate: true},
	}, completed)
	require.NoError(t, err)

	stats, err := l.UploadStats()
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 1, stats.TotalFilesUploaded)
	assert.Equal(t, 1, stats.TotalFilesFailed)
	assert.Equal(t, 1, stats.TotalFilesSkipped)
	assert.Equal(t, int64(1<<20), stats.TotalBytesUploaded, "only completed rows count")

	session := stats.Sessions[0]
	assert.Equal(t, "14:30:22", session.Time)
	assert.Equal(t, "2026-02-08", session.Date)
	assert.Equal(t, 3, session.TotalFiles)
	assert.Equal(t, 4.0, session.TotalDurationSeconds)
	// 1 MiB over 4 s: 1/4*8 = 2 Mbps.
	assert.Equal(t, 2.0, session.AvgSpeedMbps)
	assert.Equal(t, "boom", session.Files[1].ErrorMessage)
}
