// Package recording derives object-store keys from robotics recording files.
//
// A recording's key is a pure function of its earliest data timestamp and its
// filename: year=YYYY/month=MM/day=DD/hour=HH/minute=MB/<filename>, where MB
// is the minute rounded down to a 10-minute bucket. The timestamp comes from
// the MCAP message stream when the file is parseable, or from the filename
// when it is not.
package recording

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidityCutoff is the earliest timestamp considered real. Recorders that
// boot without a clock emit epoch-defaulted times; anything before 1980 is
// treated as invalid rather than fatal.
var ValidityCutoff = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// GenerateKey returns the Hive-partitioned object key for a recording.
//
// The minute component is rounded down to a 10-minute bucket
// (00, 10, 20, 30, 40, 50). All components are zero-padded.
//
// Parameters:
//   - startTime: the recording's earliest data timestamp
//   - filename: the recording's basename, appended verbatim
//
// Returns the key, e.g.
// "year=2024/month=06/day=15/hour=14/minute=30/Bag_2024_06_15_14_35_00.mcap".
func GenerateKey(startTime time.Time, filename string) string {
	t := startTime.UTC()
	minuteBucket := (t.Minute() / 10) * 10

	return fmt.Sprintf("year=%04d/month=%02d/day=%02d/hour=%02d/minute=%02d/%s",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), minuteBucket, filename)
}

// KeyParts holds the partition components recovered from an object key.
type KeyParts struct {
	Year         int
	Month        int
	Day          int
	Hour         int
	MinuteBucket int
	Filename     string
}

// ParseKey splits a Hive-partitioned object key back into its components.
// Returns false if the key does not have the expected five partitions.
func ParseKey(key string) (KeyParts, bool) {
	segments := strings.SplitN(key, "/", 6)
	if len(segments) != 6 {
		return KeyParts{}, false
	}

	var parts KeyParts
	fields := []struct {
		prefix string
		dst    *int
	}{
		{"year=", &parts.Year},
		{"month=", &parts.Month},
		{"day=", &parts.Day},
		{"hour=", &parts.Hour},
		{"minute=", &parts.MinuteBucket},
	}

	for i, f := range fields {
		v, ok := strings.CutPrefix(segments[i], f.prefix)
		if !ok {
			return KeyParts{}, false
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return KeyParts{}, false
		}
		*f.dst = n
	}

	parts.Filename = segments[5]
	return parts, true
}

// IsValidTimestamp reports whether t is on or after the 1980 validity cutoff.
func IsValidTimestamp(t time.Time) bool {
	return !t.UTC().Before(ValidityCutoff)
}

// FormatFileSize renders a byte count as a human-readable string with one
// decimal place, e.g. "1.5 GB". Uses a 1024 divisor.
func FormatFileSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 && size > -1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", size)
}
