package recording

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// ErrNoTimestamp is returned when neither the recording's message stream nor
// its filename yields a timestamp.
var ErrNoTimestamp = errors.New("no timestamp found")

// Filename patterns tried in order. Recorders in the field use several
// layouts; the underscore layout is the most common.
var filenamePatterns = []*regexp.Regexp{
	// Bag_2026_01_22_17_10_46_0.mcap
	regexp.MustCompile(`(\d{4})_(\d{2})_(\d{2})_(\d{2})_(\d{2})_(\d{2})`),
	// 2026-01-22_17-10-46.mcap or 2026-01-22-17-10-46.mcap
	regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})[-_](\d{2})-(\d{2})-(\d{2})`),
	// recording_20260122_171046.mcap or recording_20260122-171046.mcap
	regexp.MustCompile(`(\d{4})(\d{2})(\d{2})[-_](\d{2})(\d{2})(\d{2})`),
}

// TimestampFromFilename extracts a timestamp embedded in a recording's
// filename. Patterns are tried in order; a match with an impossible calendar
// date (month 13, Feb 30) is rejected and the next pattern is tried.
//
// Returns the timestamp in UTC and true, or the zero time and false if no
// pattern matches.
func TimestampFromFilename(filename string) (time.Time, bool) {
	for _, pattern := range filenamePatterns {
		m := pattern.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		if t, ok := dateFromGroups(m[1:7]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// dateFromGroups converts six regex groups (Y M D h m s) into a time, and
// rejects values that do not form a real calendar date.
func dateFromGroups(groups []string) (time.Time, bool) {
	vals := make([]int, 6)
	for i, g := range groups {
		n, err := strconv.Atoi(g)
		if err != nil {
			return time.Time{}, false
		}
		vals[i] = n
	}

	year, month, day := vals[0], vals[1], vals[2]
	hour, minute, second := vals[3], vals[4], vals[5]

	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour > 23 || minute > 59 || second > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)

	// time.Date normalizes overflow (Feb 30 becomes Mar 2); reject those.
	if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
		return time.Time{}, false
	}

	return t, true
}

// TimeFromEpoch converts a numeric Unix epoch of unknown unit into a time.
// Unit auto-detection: values above 1e18 are nanoseconds, above 1e15
// microseconds, above 1e12 milliseconds, otherwise seconds.
func TimeFromEpoch(v uint64) time.Time {
	f := float64(v)
	switch {
	case f > 1e18:
		return time.Unix(0, int64(v)).UTC()
	case f > 1e15:
		return time.UnixMicro(int64(v)).UTC()
	case f > 1e12:
		return time.UnixMilli(int64(v)).UTC()
	default:
		return time.Unix(int64(v), 0).UTC()
	}
}

// ExtractStartTime returns the earliest data timestamp of the recording at
// path.
//
// Strategy, in order:
//  1. Parse the MCAP message stream and take the minimum message time that
//     is on or after the 1980 validity cutoff.
//  2. Extract a timestamp from the filename.
//  3. If parsing found only pre-cutoff values (epoch-defaulted recorders),
//     return the earliest of those; callers mark such files invalid rather
//     than failing them.
//
// Returns ErrNoTimestamp (wrapped with the path) when all strategies fail,
// or the underlying error when the file cannot be opened.
func ExtractStartTime(path string) (time.Time, error) {
	if _, err := os.Stat(path); err != nil {
		return time.Time{}, fmt.Errorf("recording not found: %w", err)
	}

	valid, any, parseErr := earliestMessageTime(path)

	if parseErr == nil && !valid.IsZero() {
		return valid, nil
	}

	if t, ok := TimestampFromFilename(filepath.Base(path)); ok {
		return t, nil
	}

	// A parse result below the cutoff is still a result; the caller decides
	// what an invalid timestamp means for the file.
	if parseErr == nil && !any.IsZero() {
		return any, nil
	}

	return time.Time{}, fmt.Errorf("could not extract timestamps from recording %s: %w", path, ErrNoTimestamp)
}
