// Package audit keeps the application's durable event trail.
//
// Events append to hive-partitioned daily JSONL files
// (logs/json/year=YYYY/month=MM/day=DD/events.jsonl), one JSON object per
// line, so analytics tools can read the whole history with hive
// partitioning enabled. Finished jobs additionally leave a single-object
// JSONL snapshot and a CSV upload summary next to the day's journal.
//
// Audit writes must never fail a user-visible operation: the convenience
// levels (Info, Warning, Error) swallow write failures with a warning on
// the process log.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/modaq/uploader/internal/logger"
)

// Levels for journal entries.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Categories group related events for filtering.
const (
	CategoryUpload   = "upload"
	CategoryAnalysis = "analysis"
	CategorySettings = "settings"
	CategoryApp      = "app"
	CategorySync     = "sync"
	CategoryDelete   = "delete"
	CategoryScan     = "scan"
)

// Entry is one journal record. Timestamp is RFC 3339 in UTC; keeping it a
// string makes newest-first sorting a plain string comparison.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Log writes and reads the audit trail rooted at a single directory.
// Safe for concurrent use; a single mutex serializes file appends.
type Log struct {
	mu  sync.Mutex
	dir string

	// now is swappable for tests.
	now func() time.Time
}

// New returns a Log rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Log {
	return &Log{dir: dir, now: time.Now}
}

// Dir returns the root log directory.
func (l *Log) Dir() string {
	return l.dir
}

// hiveDir builds and creates logs/<sub>/year=YYYY/month=MM/day=DD.
func (l *Log) hiveDir(sub string, t time.Time) (string, error) {
	dir := filepath.Join(l.dir, sub,
		fmt.Sprintf("year=%04d", t.Year()),
		fmt.Sprintf("month=%02d", int(t.Month())),
		fmt.Sprintf("day=%02d", t.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	return dir, nil
}

// Write appends an entry to the current day's journal.
//
// Parameters:
//   - level: LevelInfo, LevelWarning, or LevelError
//   - category: One of the Category constants
//   - event: Machine-readable snake_case event name
//   - message: Human-readable description
//   - metadata: Optional structured detail; nil omits the field
//
// Returns:
//   - error: Directory creation, serialization, or append failure
func (l *Log) Write(level, category, event, message string, metadata map[string]any) error {
	now := l.now().UTC()
	entry := Entry{
		Timestamp: now.Format(time.RFC3339Nano),
		Level:     level,
		Category:  category,
		Event:     event,
		Message:   message,
		Metadata:  metadata,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	dir, err := l.hiveDir("json", now)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Info records an INFO event, swallowing write failures.
func (l *Log) Info(category, event, message string, metadata map[string]any) {
	l.swallow(l.Write(LevelInfo, category, event, message, metadata))
}

// Warning records a WARNING event, swallowing write failures.
func (l *Log) Warning(category, event, message string, metadata map[string]any) {
	l.swallow(l.Write(LevelWarning, category, event, message, metadata))
}

// Error records an ERROR event, swallowing write failures.
func (l *Log) Error(category, event, message string, metadata map[string]any) {
	l.swallow(l.Write(LevelError, category, event, message, metadata))
}

func (l *Log) swallow(err error) {
	if err != nil {
		logger.Warn("audit write failed", "error", err)
	}
}

var hiveDateRe = regexp.MustCompile(`year=(\d{4})/month=(\d{2})/day=(\d{2})`)

// dateFromHivePath extracts "YYYY-MM-DD" from a hive-partitioned path, or
// "" when the path carries no date components.
func dateFromHivePath(path string) string {
	m := hiveDateRe.FindStringSubmatch(filepath.ToSlash(path))
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3]
}
