package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/modaq/uploader/pkg/recording"
)

// csvColumns is the upload-summary schema. Column order is part of the
// file format; downstream reporting reads these headers by name.
var csvColumns = []string{
	"job_id",
	"filename",
	"file_size_bytes",
	"file_size_formatted",
	"s3_path",
	"status",
	"data_start_time",
	"upload_started_at",
	"upload_completed_at",
	"upload_duration_seconds",
	"upload_speed_mbps",
	"is_duplicate",
	"is_valid",
	"error_message",
}

// UploadRecord is one file's row in a job's CSV summary.
type UploadRecord struct {
	Filename          string
	FileSizeBytes     int64
	S3Path            string
	Status            string
	DataStartTime     *time.Time
	UploadStartedAt   *time.Time
	UploadCompletedAt *time.Time
	// DurationSeconds is nil for files that never uploaded.
	DurationSeconds *float64
	IsDuplicate     bool
	IsValid         bool
	ErrorMessage    string
}

// SaveJobJSONL writes a finished job's full snapshot as a single-object
// JSONL file next to the day's journal.
//
// Parameters:
//   - jobID: File is named <jobID>.jsonl
//   - snapshot: Any JSON-serializable job summary
//   - completedAt: Partitions the file under its completion date
//
// Returns:
//   - string: Path of the written file
//   - error: Serialization or write failure
func (l *Log) SaveJobJSONL(jobID string, snapshot any, completedAt time.Time) (string, error) {
	line, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("failed to serialize job snapshot: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir, err := l.hiveDir("json", completedAt.UTC())
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, jobID+".jsonl")
	if err := os.WriteFile(path, append(line, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write job snapshot: %w", err)
	}
	return path, nil
}

// SaveJobCSV writes a job's per-file upload summary as
// logs/csv/.../upload-summary-HHMMSS-<short id>.csv.
//
// Upload speed is derived per row as bits over duration
// (size/duration/1024/1024*8, two decimals); rows without a positive
// duration leave the column empty.
//
// Parameters:
//   - jobID: Full job id; the filename carries its first 8 characters
//   - records: One row per file, in the job's file order
//   - completedAt: Partitions the file under its completion date
//
// Returns:
//   - string: Path of the written file
//   - error: Directory creation or write failure
func (l *Log) SaveJobCSV(jobID string, records []UploadRecord, completedAt time.Time) (string, error) {
	completedAt = completedAt.UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	dir, err := l.hiveDir("csv", completedAt)
	if err != nil {
		return "", err
	}

	shortID := jobID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	path := filepath.Join(dir,
		fmt.Sprintf("upload-summary-%s-%s.csv", completedAt.Format("150405"), shortID))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create job summary: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvColumns); err != nil {
		return "", fmt.Errorf("failed to write job summary: %w", err)
	}
	for _, r := range records {
		if err := w.Write(r.row(jobID)); err != nil {
			return "", fmt.Errorf("failed to write job summary: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to write job summary: %w", err)
	}
	return path, nil
}

func (r UploadRecord) row(jobID string) []string {
	duration := ""
	speed := ""
	if r.DurationSeconds != nil {
		duration = strconv.FormatFloat(*r.DurationSeconds, 'f', -1, 64)
		if *r.DurationSeconds > 0 {
			mbps := float64(r.FileSizeBytes) / *r.DurationSeconds / 1024 / 1024 * 8
			speed = strconv.FormatFloat(round2(mbps), 'f', -1, 64)
		}
	}
	return []string{
		jobID,
		r.Filename,
		strconv.FormatInt(r.FileSizeBytes, 10),
		recording.FormatFileSize(r.FileSizeBytes),
		r.S3Path,
		r.Status,
		isoOrEmpty(r.DataStartTime),
		isoOrEmpty(r.UploadStartedAt),
		isoOrEmpty(r.UploadCompletedAt),
		duration,
		speed,
		strconv.FormatBool(r.IsDuplicate),
		strconv.FormatBool(r.IsValid),
		r.ErrorMessage,
	}
}

func isoOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
