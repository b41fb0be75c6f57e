package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// syncStateFile records, per relative path, the file size last shipped.
const syncStateFile = ".sync_state.json"

// Shipper uploads one local file to the object store. *s3.Gateway
// satisfies it.
type Shipper interface {
	Put(ctx context.Context, bucket, key, localPath string, progress s3gw.ProgressFunc) (*s3gw.PutResult, error)
}

// ShipResult reports one shipping run.
type ShipResult struct {
	Success    bool     `json:"success"`
	Synced     int      `json:"synced"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
	TotalFiles int      `json:"total_files"`
}

// Ship uploads every journal and summary file whose size changed since the
// last run to <prefix><relative path> in the bucket.
//
// A sidecar state file next to the logs maps relative paths to the size
// last shipped; size equality skips the upload. Journals only ever grow,
// so size is a sufficient change signal. State updates land only for
// files that actually shipped, and the sidecar is rewritten even when
// some uploads fail so partial progress survives.
//
// Parameters:
//   - ctx: Context for cancellation between files
//   - shipper: Upload transport
//   - bucket: Destination bucket
//   - prefix: Key prefix, usually "logs/"
//
// Returns:
//   - *ShipResult: Per-run counters; Success is false when any file failed
//   - error: Only for failures before shipping starts (state unreadable
//     is not one; a corrupt sidecar resets to empty)
func (l *Log) Ship(ctx context.Context, shipper Shipper, bucket, prefix string) (*ShipResult, error) {
	statePath := filepath.Join(l.dir, syncStateFile)
	state := loadSyncState(statePath)

	var files []FileInfo
	jsonl, err := l.collectFiles("json", ".jsonl")
	if err != nil {
		return nil, err
	}
	files = append(files, jsonl...)
	csvs, err := l.collectFiles("csv", ".csv")
	if err != nil {
		return nil, err
	}
	files = append(files, csvs...)

	result := &ShipResult{Errors: []string{}, TotalFiles: len(files)}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.RelativePath, err))
			break
		}
		if state[f.RelativePath] == f.SizeBytes {
			result.Skipped++
			continue
		}

		key := prefix + f.RelativePath
		if _, err := shipper.Put(ctx, bucket, key, f.Path, nil); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", f.RelativePath, err))
			continue
		}
		state[f.RelativePath] = f.SizeBytes
		result.Synced++
	}

	if err := saveSyncState(statePath, state); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to persist sync state: %v", err))
	}

	result.Success = len(result.Errors) == 0
	l.Info(CategorySync, "log_sync_completed",
		fmt.Sprintf("Synced %d log files to S3", result.Synced),
		map[string]any{
			"synced":  result.Synced,
			"skipped": result.Skipped,
			"errors":  len(result.Errors),
		})
	return result, nil
}

func loadSyncState(path string) map[string]int64 {
	state := map[string]int64{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return map[string]int64{}
	}
	return state
}

// saveSyncState writes the sidecar through a temp file so a crash cannot
// leave a torn state that re-ships everything.
func saveSyncState(path string, state map[string]int64) error {
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
