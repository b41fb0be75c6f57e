package audit

import (
	"os"
	"sort"
)

// DateRange bounds the journal's coverage by day.
type DateRange struct {
	Earliest *string `json:"earliest"`
	Latest   *string `json:"latest"`
}

// CSVFileInfo summarizes one upload-summary artifact.
type CSVFileInfo struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Date     string `json:"date"`
	Size     int64  `json:"size"`
}

// LogStats aggregates the whole journal.
type LogStats struct {
	TotalEntries   int            `json:"total_entries"`
	TodayEntries   int            `json:"today_entries"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	LevelCounts    map[string]int `json:"level_counts"`
	CategoryCounts map[string]int `json:"category_counts"`
	DateRange      DateRange      `json:"date_range"`
	FileCount      int            `json:"file_count"`
	CSVCount       int            `json:"csv_count"`
	CSVFiles       []CSVFileInfo  `json:"csv_files"`
}

// Stats walks every daily journal and counts entries by level and
// category. Unreadable files are skipped.
func (l *Log) Stats() (*LogStats, error) {
	stats := &LogStats{
		LevelCounts:    map[string]int{},
		CategoryCounts: map[string]int{},
		CSVFiles:       []CSVFileInfo{},
	}

	files, err := l.journalFiles("")
	if err != nil {
		return nil, err
	}
	stats.FileCount = len(files)

	today := l.now().UTC().Format("2006-01-02")
	var dates []string
	seen := map[string]struct{}{}

	for _, path := range files {
		if info, err := os.Stat(path); err == nil {
			stats.TotalSizeBytes += info.Size()
		}
		date := dateFromHivePath(path)
		if date != "" {
			if _, ok := seen[date]; !ok {
				seen[date] = struct{}{}
				dates = append(dates, date)
			}
		}

		entries, err := readJournal(path)
		if err != nil {
			continue
		}
		stats.TotalEntries += len(entries)
		if date == today {
			stats.TodayEntries += len(entries)
		}
		for _, e := range entries {
			level := e.Level
			if level == "" {
				level = "UNKNOWN"
			}
			stats.LevelCounts[level]++

			category := e.Category
			if category == "" {
				category = "unknown"
			}
			stats.CategoryCounts[category]++
		}
	}

	sort.Strings(dates)
	if len(dates) > 0 {
		stats.DateRange.Earliest = &dates[0]
		stats.DateRange.Latest = &dates[len(dates)-1]
	}

	csvs, err := l.collectFiles("csv", ".csv")
	if err != nil {
		return nil, err
	}
	stats.CSVCount = len(csvs)
	for _, f := range csvs {
		stats.CSVFiles = append(stats.CSVFiles, CSVFileInfo{
			Path:     f.RelativePath,
			Filename: f.Filename,
			Date:     f.Date,
			Size:     f.SizeBytes,
		})
	}
	return stats, nil
}
