package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/recording"
)

// PreFilter weeds out already-uploaded files without opening any of
// them. Filename and size alone settle most of a re-scan: the
// filename+size index first, then a filename-derived key against the
// key cache, and only the leftovers cost a HEAD. With cacheOnly set the
// store is never touched and misses fall through to full analysis.
//
// Returns:
//   - []string: Paths still needing MCAP analysis
//   - map[string]any: Counters plus per-file statuses, stored on the job
//     that consumes them
func (e *UploadEngine) PreFilter(ctx context.Context, paths []string, target Target, cacheOnly bool) ([]string, map[string]any) {
	var toAnalyze []string
	var statuses []map[string]any

	stats := map[string]any{
		"total":         len(paths),
		"cache_hits":    0,
		"cache_skipped": 0,
		"s3_hits":       0,
		"no_timestamp":  0,
		"to_analyze":    0,
	}
	bump := func(key string) { stats[key] = stats[key].(int) + 1 }

	// Cache misses with derivable keys, batched for the store check.
	var missIdx []int
	var missKeys []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		filename := filepath.Base(p)
		size := info.Size()
		status := map[string]any{
			"path":             p,
			"filename":         filename,
			"size":             size,
			"mtime":            float64(info.ModTime().UnixNano()) / 1e9,
			"already_uploaded": false,
		}

		if uploaded, err := e.cache.CheckByFilename(ctx, target.Bucket, filename, size); err == nil && uploaded {
			bump("cache_hits")
			bump("cache_skipped")
			status["already_uploaded"] = true
			statuses = append(statuses, status)
			continue
		}

		ts, ok := recording.TimestampFromFilename(filename)
		if !ok {
			bump("no_timestamp")
			toAnalyze = append(toAnalyze, p)
			statuses = append(statuses, status)
			continue
		}

		s3Path := recording.GenerateKey(ts, filename)
		status["s3_path"] = s3Path

		existence := cache.ExistsUnknown
		if got, err := e.cache.CheckPath(ctx, target.Bucket, s3Path); err == nil {
			existence = got
		}
		switch existence {
		case cache.ExistsYes:
			bump("cache_hits")
			bump("cache_skipped")
			status["already_uploaded"] = true
		case cache.ExistsNo:
			bump("cache_hits")
			toAnalyze = append(toAnalyze, p)
		default:
			missIdx = append(missIdx, len(statuses))
			missKeys = append(missKeys, s3Path)
		}
		statuses = append(statuses, status)
	}

	if len(missKeys) > 0 {
		if cacheOnly {
			for _, idx := range missIdx {
				toAnalyze = append(toAnalyze, statuses[idx]["path"].(string))
			}
		} else {
			toAnalyze = e.headMisses(ctx, target, missIdx, missKeys, statuses, toAnalyze, stats)
		}
	}

	stats["to_analyze"] = len(toAnalyze)
	stats["file_statuses"] = statuses
	return toAnalyze, stats
}

// headMisses resolves cache misses against the store in parallel. A
// store failure degrades every miss to full analysis rather than losing
// the file.
func (e *UploadEngine) headMisses(ctx context.Context, target Target, missIdx []int, missKeys []string, statuses []map[string]any, toAnalyze []string, stats map[string]any) []string {
	store, err := e.newStore(ctx, target.Profile, target.Region)
	if err != nil {
		for _, idx := range missIdx {
			toAnalyze = append(toAnalyze, statuses[idx]["path"].(string))
		}
		return toAnalyze
	}

	exists := make([]bool, len(missKeys))
	failed := make([]bool, len(missKeys))
	work := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < e.ioWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				found, err := store.Head(ctx, target.Bucket, missKeys[idx])
				exists[idx] = found
				failed[idx] = err != nil
			}
		}()
	}
	for i := range missKeys {
		work <- i
	}
	close(work)
	wg.Wait()

	for i, idx := range missIdx {
		status := statuses[idx]
		if failed[i] {
			toAnalyze = append(toAnalyze, status["path"].(string))
			continue
		}
		_ = e.cache.Update(ctx, target.Bucket, cache.Entry{
			S3Path:   missKeys[i],
			Exists:   exists[i],
			Filename: status["filename"].(string),
			FileSize: status["size"].(int64),
		})
		if exists[i] {
			stats["s3_hits"] = stats["s3_hits"].(int) + 1
			status["already_uploaded"] = true
		} else {
			toAnalyze = append(toAnalyze, status["path"].(string))
		}
	}
	return toAnalyze
}
