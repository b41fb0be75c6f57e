package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileInfo describes one artifact under the log directory.
type FileInfo struct {
	Date         string `json:"date"`
	Filename     string `json:"filename"`
	Path         string `json:"path"`
	RelativePath string `json:"relative_path"`
	SizeBytes    int64  `json:"size_bytes"`
	Type         string `json:"type"`
}

// QueryOptions filter and paginate journal reads. Zero-value fields are
// unfiltered; a zero Limit reads 100 entries.
type QueryOptions struct {
	// Date restricts the read to one day ("YYYY-MM-DD"), resolved
	// directly to its hive path without walking the tree.
	Date     string
	Level    string
	Category string
	// Search matches case-insensitively against message and event.
	Search string
	Offset int
	Limit  int
}

// QueryResult is one page of journal entries plus the unpaginated total.
type QueryResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Offset  int     `json:"offset"`
	Limit   int     `json:"limit"`
}

// ListFiles returns every journal and summary artifact, JSONL first, each
// group sorted newest path first.
func (l *Log) ListFiles() ([]FileInfo, error) {
	result := []FileInfo{}

	jsonl, err := l.collectFiles("json", ".jsonl")
	if err != nil {
		return nil, err
	}
	result = append(result, jsonl...)

	csvs, err := l.collectFiles("csv", ".csv")
	if err != nil {
		return nil, err
	}
	return append(result, csvs...), nil
}

func (l *Log) collectFiles(sub, ext string) ([]FileInfo, error) {
	root := filepath.Join(l.dir, sub)
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}

	var files []FileInfo
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Date:         dateFromHivePath(path),
			Filename:     d.Name(),
			Path:         path,
			RelativePath: filepath.ToSlash(rel),
			SizeBytes:    info.Size(),
			Type:         strings.TrimPrefix(ext, "."),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path > files[j].Path })
	return files, nil
}

// Query reads journal entries matching the options, newest first.
//
// Returns:
//   - *QueryResult: The requested page; an unknown or malformed date
//     yields an empty page rather than an error
//   - error: Filesystem walk failure
func (l *Log) Query(opts QueryOptions) (*QueryResult, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	result := &QueryResult{Entries: []Entry{}, Offset: opts.Offset, Limit: opts.Limit}

	files, err := l.journalFiles(opts.Date)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, path := range files {
		fileEntries, err := readJournal(path)
		if err != nil {
			// Unreadable journals are skipped, matching the trail's
			// best-effort contract.
			continue
		}
		for _, e := range fileEntries {
			if opts.Level != "" && !strings.EqualFold(e.Level, opts.Level) {
				continue
			}
			if opts.Category != "" && e.Category != opts.Category {
				continue
			}
			if opts.Search != "" {
				needle := strings.ToLower(opts.Search)
				if !strings.Contains(strings.ToLower(e.Message), needle) &&
					!strings.Contains(strings.ToLower(e.Event), needle) {
					continue
				}
			}
			entries = append(entries, e)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})

	result.Total = len(entries)
	if opts.Offset < len(entries) {
		end := opts.Offset + opts.Limit
		if end > len(entries) {
			end = len(entries)
		}
		result.Entries = entries[opts.Offset:end]
	}
	return result, nil
}

// journalFiles resolves which events.jsonl files a query touches.
func (l *Log) journalFiles(date string) ([]string, error) {
	if date != "" {
		dt, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, nil
		}
		path := filepath.Join(l.dir, "json",
			fmt.Sprintf("year=%04d", dt.Year()),
			fmt.Sprintf("month=%02d", int(dt.Month())),
			fmt.Sprintf("day=%02d", dt.Day()),
			"events.jsonl")
		if _, err := os.Stat(path); err != nil {
			return nil, nil
		}
		return []string{path}, nil
	}

	root := filepath.Join(l.dir, "json")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && d.Name() == "events.jsonl" {
			files = append(files, path)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk journals: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// readJournal parses a JSONL file, skipping blank and malformed lines.
func readJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
