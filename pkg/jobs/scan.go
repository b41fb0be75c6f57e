package jobs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/events"
)

// Scan statuses.
const (
	ScanStatusScanning  = "scanning"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
	ScanStatusCancelled = "cancelled"
)

// ScanJob tracks an incremental folder walk. Results accumulate per
// subfolder so the API can page them while the walk is still running.
type ScanJob struct {
	ID                 string
	RootFolder         string
	ExcludedSubfolders []string
	ExcludedFiles      []string

	Status               string
	Cancelled            bool
	FoldersScanned       int
	FoldersTotal         int
	TotalFilesFound      int
	TotalAlreadyUploaded int
	TotalSize            int64
	ScannedFolders       []map[string]any
	CreatedAt            time.Time

	mu sync.Mutex
}

// Dict returns the scan job snapshot for API responses.
func (s *ScanJob) Dict() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders := make([]map[string]any, len(s.ScannedFolders))
	copy(folders, s.ScannedFolders)

	return map[string]any{
		"job_id":                 s.ID,
		"root_folder":            s.RootFolder,
		"status":                 s.Status,
		"cancelled":              s.Cancelled,
		"folders_scanned":        s.FoldersScanned,
		"folders_total":          s.FoldersTotal,
		"total_files_found":      s.TotalFilesFound,
		"total_already_uploaded": s.TotalAlreadyUploaded,
		"total_size":             s.TotalSize,
		"scanned_folders":        folders,
		"created_at":             s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *ScanJob) terminal() bool {
	return s.Status != ScanStatusScanning
}

// CreateScanJob registers a scan over folderPath. Exclusions match the
// first path element under the root only.
func (e *UploadEngine) CreateScanJob(folderPath string, excludedSubfolders, excludedFiles []string) *ScanJob {
	job := &ScanJob{
		ID:                 uuid.NewString(),
		RootFolder:         folderPath,
		ExcludedSubfolders: excludedSubfolders,
		ExcludedFiles:      excludedFiles,
		Status:             ScanStatusScanning,
		CreatedAt:          time.Now().UTC(),
	}
	e.mu.Lock()
	e.scans[job.ID] = job
	e.mu.Unlock()
	return job
}

// ScanJobByID returns a scan job by id.
func (e *UploadEngine) ScanJobByID(jobID string) (*ScanJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.scans[jobID]
	return job, ok
}

// CancelScan stops a running scan at its next folder boundary.
func (e *UploadEngine) CancelScan(jobID string) bool {
	job, ok := e.ScanJobByID(jobID)
	if !ok {
		return false
	}
	job.mu.Lock()
	job.Cancelled = true
	job.Status = ScanStatusCancelled
	job.mu.Unlock()
	return true
}

// Scan walks the job's root for recordings, groups them by parent
// folder, and pre-filters each folder batch for files already in the
// store. One event per finished folder keeps the stream proportional to
// the tree, not the file count.
func (e *UploadEngine) Scan(ctx context.Context, jobID string, target Target, cacheOnly bool) {
	job, ok := e.ScanJobByID(jobID)
	if !ok {
		return
	}

	folders, err := e.enumerateFolders(job)
	if err != nil {
		job.mu.Lock()
		job.Status = ScanStatusFailed
		job.mu.Unlock()
		e.audit.Error(audit.CategoryScan, "scan_job_failed",
			fmt.Sprintf("Scan job %s failed: %v", jobID, err),
			map[string]any{"job_id": jobID, "error": err.Error()})
		e.hub.Publish(jobID, events.New(events.TypeScanComplete).
			With("status", ScanStatusFailed).
			With("error", err.Error()).
			AsTerminal())
		return
	}

	job.mu.Lock()
	if job.Cancelled {
		job.mu.Unlock()
		e.hub.Publish(jobID, events.New(events.TypeScanComplete).
			With("status", ScanStatusCancelled).
			AsTerminal())
		return
	}
	job.FoldersTotal = len(folders)
	job.mu.Unlock()

	e.hub.Publish(jobID, events.New(events.TypeScanStarted).
		With("folders_total", len(folders)).
		With("root_folder", job.RootFolder))

	for _, folder := range folders {
		job.mu.Lock()
		cancelled := job.Cancelled
		job.mu.Unlock()
		if cancelled {
			break
		}
		e.scanFolder(ctx, job, folder, target, cacheOnly)
	}

	job.mu.Lock()
	if job.Cancelled {
		job.Status = ScanStatusCancelled
	} else {
		job.Status = ScanStatusCompleted
	}
	status := job.Status
	scanned, total := job.FoldersScanned, job.FoldersTotal
	filesFound, alreadyUploaded := job.TotalFilesFound, job.TotalAlreadyUploaded
	size := job.TotalSize
	job.mu.Unlock()

	e.hub.Publish(jobID, events.New(events.TypeScanComplete).
		With("status", status).
		With("folders_scanned", scanned).
		With("folders_total", total).
		With("total_files_found", filesFound).
		With("total_already_uploaded", alreadyUploaded).
		With("total_size", size).
		AsTerminal())
}

// folderBatch is one parent directory and its recordings.
type folderBatch struct {
	path  string
	files []string
}

// enumerateFolders walks the root once, keyed by parent directory.
// Only metadata is touched here; sizes come later per folder.
func (e *UploadEngine) enumerateFolders(job *ScanJob) ([]folderBatch, error) {
	root := job.RootFolder
	excludedSubs := make(map[string]struct{}, len(job.ExcludedSubfolders))
	for _, s := range job.ExcludedSubfolders {
		excludedSubs[s] = struct{}{}
	}
	excludedFiles := make(map[string]struct{}, len(job.ExcludedFiles))
	for _, f := range job.ExcludedFiles {
		excludedFiles[f] = struct{}{}
	}

	grouped := make(map[string][]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		job.mu.Lock()
		cancelled := job.Cancelled
		job.mu.Unlock()
		if cancelled {
			return filepath.SkipAll
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mcap") {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 1 {
			if _, skip := excludedFiles[parts[0]]; skip {
				return nil
			}
		} else if _, skip := excludedSubs[parts[0]]; skip {
			return nil
		}
		parent := filepath.Dir(path)
		grouped[parent] = append(grouped[parent], path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	folders := make([]folderBatch, 0, len(grouped))
	for path, files := range grouped {
		sort.Slice(files, func(i, j int) bool {
			return filepath.Base(files[i]) < filepath.Base(files[j])
		})
		folders = append(folders, folderBatch{path: path, files: files})
	}
	sort.Slice(folders, func(i, j int) bool { return folders[i].path < folders[j].path })
	return folders, nil
}

// scanFolder pre-filters one folder batch and publishes its result.
func (e *UploadEngine) scanFolder(ctx context.Context, job *ScanJob, folder folderBatch, target Target, cacheOnly bool) {
	relative, err := filepath.Rel(job.RootFolder, folder.path)
	if err != nil {
		relative = folder.path
	}
	relative = filepath.ToSlash(relative)

	folderDict, folderSize, alreadyUploaded, total := e.collectFolder(ctx, job, folder, relative, target, cacheOnly)

	job.mu.Lock()
	job.FoldersScanned++
	job.TotalFilesFound += total
	job.TotalAlreadyUploaded += alreadyUploaded
	job.TotalSize += folderSize
	job.ScannedFolders = append(job.ScannedFolders, folderDict)
	scanned, foldersTotal := job.FoldersScanned, job.FoldersTotal
	runningFiles, runningUploaded := job.TotalFilesFound, job.TotalAlreadyUploaded
	runningSize := job.TotalSize
	job.mu.Unlock()

	e.hub.Publish(job.ID, events.New(events.TypeScanFolderComplete).
		With("folder", folderDict).
		With("folders_scanned", scanned).
		With("folders_total", foldersTotal).
		With("running_totals", map[string]any{
			"total_files_found":      runningFiles,
			"total_already_uploaded": runningUploaded,
			"total_size":             runningSize,
		}))
}

// collectFolder stats the batch, runs the pre-filter, and folds the
// duplicate verdicts into the per-file info.
func (e *UploadEngine) collectFolder(ctx context.Context, job *ScanJob, folder folderBatch, relative string, target Target, cacheOnly bool) (map[string]any, int64, int, int) {
	var folderSize int64
	filesInfo := make([]map[string]any, 0, len(folder.files))
	for _, p := range folder.files {
		info, err := os.Stat(p)
		if err != nil {
			e.audit.Error(audit.CategoryScan, "scan_folder_error",
				fmt.Sprintf("Error scanning %s: %v", folder.path, err),
				map[string]any{"job_id": job.ID, "folder": folder.path, "error": err.Error()})
			return map[string]any{
				"relative_path":    relative,
				"files":            []map[string]any{},
				"total_files":      0,
				"already_uploaded": 0,
				"all_uploaded":     false,
				"error":            err.Error(),
			}, 0, 0, 0
		}
		folderSize += info.Size()
		rel, relErr := filepath.Rel(job.RootFolder, p)
		if relErr != nil {
			rel = p
		}
		filesInfo = append(filesInfo, map[string]any{
			"path":          p,
			"filename":      filepath.Base(p),
			"size":          info.Size(),
			"mtime":         float64(info.ModTime().UnixNano()) / 1e9,
			"relative_path": filepath.ToSlash(rel),
		})
	}

	_, preStats := e.PreFilter(ctx, folder.files, target, cacheOnly)
	uploadedByPath := make(map[string]bool)
	if statuses, ok := preStats["file_statuses"].([]map[string]any); ok {
		for _, fs := range statuses {
			path, _ := fs["path"].(string)
			uploaded, _ := fs["already_uploaded"].(bool)
			uploadedByPath[path] = uploaded
		}
	}

	alreadyUploaded := 0
	for _, fi := range filesInfo {
		uploaded := uploadedByPath[fi["path"].(string)]
		fi["already_uploaded"] = uploaded
		if uploaded {
			alreadyUploaded++
		}
	}

	return map[string]any{
		"relative_path":    relative,
		"files":            filesInfo,
		"total_files":      len(filesInfo),
		"already_uploaded": alreadyUploaded,
		"all_uploaded":     len(filesInfo) > 0 && alreadyUploaded == len(filesInfo),
		"error":            nil,
	}, folderSize, alreadyUploaded, len(filesInfo)
}

// scanSource adapts scan jobs to the stream hub.
type scanSource struct{ e *UploadEngine }

func (s scanSource) Snapshot(jobID string) (events.Event, bool, bool) {
	job, ok := s.e.ScanJobByID(jobID)
	if !ok {
		return events.Event{}, false, false
	}
	job.mu.Lock()
	terminal := job.terminal()
	job.mu.Unlock()
	return events.Event{Payload: job.Dict()}, terminal, true
}

// ScanStreamSource exposes scan jobs to events.Hub.Stream.
func (e *UploadEngine) ScanStreamSource() events.Source {
	return scanSource{e}
}
