package audit

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/modaq/uploader/pkg/recording"
)

// SessionFile is one row of a session's summary, trimmed for reporting.
type SessionFile struct {
	Filename          string `json:"filename"`
	FileSizeFormatted string `json:"file_size_formatted"`
	Status            string `json:"status"`
	UploadSpeedMbps   string `json:"upload_speed_mbps"`
	S3Path            string `json:"s3_path"`
	ErrorMessage      string `json:"error_message"`
}

// Session aggregates one upload-summary CSV.
type Session struct {
	CSVPath              string        `json:"csv_path"`
	Date                 string        `json:"date"`
	Time                 string        `json:"time"`
	TotalFiles           int           `json:"total_files"`
	Completed            int           `json:"completed"`
	Failed               int           `json:"failed"`
	Skipped              int           `json:"skipped"`
	TotalBytes           int64         `json:"total_bytes"`
	TotalBytesFormatted  string        `json:"total_bytes_formatted"`
	TotalDurationSeconds float64       `json:"total_duration_seconds"`
	AvgSpeedMbps         float64       `json:"avg_speed_mbps"`
	Files                []SessionFile `json:"files"`
}

// UploadStats rolls every session up into lifetime totals.
type UploadStats struct {
	TotalFilesUploaded  int       `json:"total_files_uploaded"`
	TotalFilesFailed    int       `json:"total_files_failed"`
	TotalFilesSkipped   int       `json:"total_files_skipped"`
	TotalBytesUploaded  int64     `json:"total_bytes_uploaded"`
	TotalBytesFormatted string    `json:"total_bytes_uploaded_formatted"`
	TotalSessions       int       `json:"total_sessions"`
	Sessions            []Session `json:"sessions"`
}

// UploadStats parses every upload-summary CSV into per-session and
// lifetime aggregates, newest session first. Only completed rows count
// toward byte totals. Unparseable files are skipped.
func (l *Log) UploadStats() (*UploadStats, error) {
	stats := &UploadStats{Sessions: []Session{}}

	files, err := l.collectFiles("csv", ".csv")
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		session, ok := readSession(f)
		if !ok {
			continue
		}
		stats.TotalFilesUploaded += session.Completed
		stats.TotalFilesFailed += session.Failed
		stats.TotalFilesSkipped += session.Skipped
		stats.TotalBytesUploaded += session.TotalBytes
		stats.Sessions = append(stats.Sessions, session)
	}

	stats.TotalBytesFormatted = recording.FormatFileSize(stats.TotalBytesUploaded)
	stats.TotalSessions = len(stats.Sessions)
	return stats, nil
}

func readSession(f FileInfo) (Session, bool) {
	session := Session{
		CSVPath: f.RelativePath,
		Date:    f.Date,
		Time:    timeFromSummaryName(f.Filename),
		Files:   []SessionFile{},
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return session, false
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	header, err := r.Read()
	if err != nil {
		return session, false
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	field := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return session, false
		}

		status := field(row, "status")
		sizeBytes, _ := strconv.ParseInt(field(row, "file_size_bytes"), 10, 64)
		duration, _ := strconv.ParseFloat(field(row, "upload_duration_seconds"), 64)

		switch status {
		case "completed":
			session.Completed++
			session.TotalBytes += sizeBytes
		case "failed":
			session.Failed++
		case "skipped":
			session.Skipped++
		}
		session.TotalDurationSeconds += duration

		session.Files = append(session.Files, SessionFile{
			Filename:          field(row, "filename"),
			FileSizeFormatted: field(row, "file_size_formatted"),
			Status:            status,
			UploadSpeedMbps:   field(row, "upload_speed_mbps"),
			S3Path:            field(row, "s3_path"),
			ErrorMessage:      field(row, "error_message"),
		})
	}

	session.TotalFiles = len(session.Files)
	session.TotalBytesFormatted = recording.FormatFileSize(session.TotalBytes)
	session.TotalDurationSeconds = math.Round(session.TotalDurationSeconds*10) / 10
	if session.TotalDurationSeconds > 0 && session.TotalBytes > 0 {
		mbps := float64(session.TotalBytes) / session.TotalDurationSeconds / 1024 / 1024 * 8
		session.AvgSpeedMbps = math.Round(mbps*10) / 10
	}
	return session, true
}

// timeFromSummaryName recovers "HH:MM:SS" from
// upload-summary-HHMMSS-<short id>.csv.
func timeFromSummaryName(name string) string {
	stem := strings.TrimSuffix(name, ".csv")
	parts := strings.Split(stem, "-")
	if len(parts) < 3 {
		return ""
	}
	raw := parts[2]
	if len(raw) != 6 {
		return ""
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return raw[:2] + ":" + raw[2:4] + ":" + raw[4:6]
}
