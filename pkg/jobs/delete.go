package jobs

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
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
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// Delete job statuses.
const (
	DeleteJobPending   = "pending"
	DeleteJobVerifying = "verifying"
	DeleteJobDeleting  = "deleting"
	DeleteJobCompleted = "completed"
	DeleteJobFailed    = "failed"
	DeleteJobCancelled = "cancelled"
)

const md5ChunkSize = 8 * 1024 * 1024

// FileDeleteState tracks one local file through verification and
// removal.
type FileDeleteState struct {
	Filename  string
	LocalPath string
	FileSize  int64
	S3Path    string
	S3Bucket  string
	Writable  bool

	Status       DeleteStatus
	LocalMD5     string
	S3ETag       string
	S3Size       int64
	Verification string
	ErrorMessage string
}

func (f *FileDeleteState) dict() map[string]any {
	return map[string]any{
		"filename":      f.Filename,
		"local_path":    f.LocalPath,
		"file_size":     f.FileSize,
		"s3_path":       f.S3Path,
		"s3_bucket":     f.S3Bucket,
		"writable":      f.Writable,
		"status":        string(f.Status),
		"local_md5":     f.LocalMD5,
		"s3_etag":       f.S3ETag,
		"s3_size":       f.S3Size,
		"verification":  f.Verification,
		"error_message": f.ErrorMessage,
	}
}

// DeleteJob is a batch of local files being verified against the store
// and removed.
type DeleteJob struct {
	ID    string
	Files []*FileDeleteState

	Status      string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Cancelled   bool

	mu sync.Mutex
}

func (j *DeleteJob) lock()   { j.mu.Lock() }
func (j *DeleteJob) unlock() { j.mu.Unlock() }

// Caller holds the job mutex.
func (j *DeleteJob) statusCounts() (map[string]int, int64) {
	counts := make(map[string]int)
	var deletedSize int64
	for _, f := range j.Files {
		counts[string(f.Status)]++
		if f.Status == DeleteDeleted {
			deletedSize += f.FileSize
		}
	}
	return counts, deletedSize
}

func (j *DeleteJob) terminal() bool {
	switch j.Status {
	case DeleteJobCompleted, DeleteJobFailed, DeleteJobCancelled:
		return true
	}
	return false
}

// Dict returns the full snapshot for API responses.
func (j *DeleteJob) Dict() map[string]any {
	j.lock()
	defer j.unlock()

	counts, deletedSize := j.statusCounts()
	files := make([]map[string]any, len(j.Files))
	for i, f := range j.Files {
		files[i] = f.dict()
	}
	return map[string]any{
		"job_id":             j.ID,
		"status":             j.Status,
		"total_files":        len(j.Files),
		"files":              files,
		"status_counts":      counts,
		"total_deleted_size": deletedSize,
		"created_at":         j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"started_at":         isoPtr(j.StartedAt),
		"completed_at":       isoPtr(j.CompletedAt),
		"cancelled":          j.Cancelled,
	}
}

// ProgressDict returns the compact snapshot streamed to subscribers.
func (j *DeleteJob) ProgressDict() map[string]any {
	j.lock()
	defer j.unlock()

	counts, deletedSize := j.statusCounts()
	processed := 0
	for _, f := range j.Files {
		switch f.Status {
		case DeletePending, DeleteVerifying, DeleteDeleting:
		default:
			processed++
		}
	}
	return map[string]any{
		"job_id":             j.ID,
		"status":             j.Status,
		"total_files":        len(j.Files),
		"files_processed":    processed,
		"status_counts":      counts,
		"total_deleted_size": deletedSize,
		"cancelled":          j.Cancelled,
	}
}

// DeleteEngine verifies local recordings against their stored objects
// and removes the ones that match. Nothing is unlinked without a
// size-confirmed HEAD, and an MD5 match on top whenever the ETag is
// single-part.
type DeleteEngine struct {
	mu   sync.Mutex
	jobs map[string]*DeleteJob

	cache    DedupCache
	audit    *audit.Log
	hub      *events.Hub
	newStore StoreFactory
	metrics  Metrics
	workers  int
}

// DeleteEngineConfig wires a DeleteEngine's collaborators.
type DeleteEngineConfig struct {
	Cache DedupCache
	Audit *audit.Log
	Hub   *events.Hub

	// NewStore defaults to DefaultStoreFactory.
	NewStore StoreFactory
	// Workers defaults to DefaultIOWorkers, bounding both the MD5 and
	// the verification pools.
	Workers int
	Metrics Metrics
}

// NewDeleteEngine returns an engine with no jobs.
func NewDeleteEngine(cfg DeleteEngineConfig) *DeleteEngine {
	if cfg.NewStore == nil {
		cfg.NewStore = DefaultStoreFactory
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultIOWorkers
	}
	return &DeleteEngine{
		jobs:     make(map[string]*DeleteJob),
		cache:    cfg.Cache,
		audit:    cfg.Audit,
		hub:      cfg.Hub,
		newStore: cfg.NewStore,
		metrics:  cfg.Metrics,
		workers:  cfg.Workers,
	}
}

// ScanFolder walks folderPath for recordings the cache knows were
// uploaded and builds a delete job from them. Files the cache has never
// seen are left alone; deletion candidates must have a known object key.
func (e *DeleteEngine) ScanFolder(ctx context.Context, folderPath, bucket string, excludedSubfolders, excludedFiles []string) (*DeleteJob, error) {
	job := &DeleteJob{
		ID:        uuid.NewString(),
		Status:    DeleteJobPending,
		CreatedAt: time.Now().UTC(),
	}

	excludedSubs := make(map[string]struct{}, len(excludedSubfolders))
	for _, s := range excludedSubfolders {
		excludedSubs[s] = struct{}{}
	}
	excluded := make(map[string]struct{}, len(excludedFiles))
	for _, f := range excludedFiles {
		excluded[f] = struct{}{}
	}

	var paths []string
	err := filepath.WalkDir(folderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mcap") {
			return nil
		}
		rel, err := filepath.Rel(folderPath, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 1 {
			if _, skip := excluded[parts[0]]; skip {
				return nil
			}
		} else if _, skip := excludedSubs[parts[0]]; skip {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", folderPath, err)
	}
	sort.Strings(paths)

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		uploaded, err := e.cache.GetUploadedFileInfo(ctx, bucket, filepath.Base(p), info.Size())
		if err != nil || uploaded == nil {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		job.Files = append(job.Files, &FileDeleteState{
			Filename:  filepath.Base(p),
			LocalPath: abs,
			FileSize:  info.Size(),
			S3Path:    uploaded.S3Path,
			S3Bucket:  bucket,
			Writable:  isWritable(abs),
			Status:    DeletePending,
		})
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.mu.Unlock()
	return job, nil
}

// Job returns a delete job by id.
func (e *DeleteEngine) Job(jobID string) (*DeleteJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	return job, ok
}

// Cancel flips the job's cancel flag. The running phase notices at its
// next file boundary.
func (e *DeleteEngine) Cancel(jobID string) bool {
	job, ok := e.Job(jobID)
	if !ok {
		return false
	}
	job.lock()
	job.Cancelled = true
	job.unlock()
	return true
}

// Start runs the job through its three phases: local MD5 hashing,
// verification against the store, then sequential unlinking of verified
// files. Hashing and verification fan out on the worker pool; deletion
// stays sequential so a crash loses at most one file's bookkeeping.
//
// Returns:
//   - bool: false when the job id is unknown
func (e *DeleteEngine) Start(ctx context.Context, jobID string, target Target) bool {
	job, ok := e.Job(jobID)
	if !ok {
		return false
	}

	started := time.Now().UTC()
	job.lock()
	job.Status = DeleteJobVerifying
	job.StartedAt = &started
	total := len(job.Files)
	job.unlock()

	e.audit.Info(audit.CategoryDelete, "job_started",
		fmt.Sprintf("Delete job started: %d files", total),
		map[string]any{"job_id": jobID, "total_files": total})

	e.hashPhase(job)
	if e.bailIfCancelled(job) {
		return true
	}

	store, err := e.newStore(ctx, target.Profile, target.Region)
	if err != nil {
		now := time.Now().UTC()
		job.lock()
		job.Status = DeleteJobFailed
		job.CompletedAt = &now
		job.unlock()
		e.audit.Error(audit.CategoryDelete, "s3_client_failed",
			fmt.Sprintf("Failed to create S3 client: %v", err),
			map[string]any{"error": err.Error()})
		e.publishTerminal(job)
		return true
	}

	e.verifyPhase(ctx, job, store)
	if e.bailIfCancelled(job) {
		return true
	}

	e.deletePhase(job)

	now := time.Now().UTC()
	job.lock()
	job.Status = DeleteJobCompleted
	job.CompletedAt = &now
	counts, _ := job.statusCounts()
	job.unlock()

	meta := map[string]any{"job_id": jobID}
	for status, n := range counts {
		meta[status] = n
	}
	e.audit.Info(audit.CategoryDelete, "job_completed",
		fmt.Sprintf("Delete job completed: %v", counts), meta)
	e.publishTerminal(job)
	return true
}

// hashPhase computes local MD5s on the worker pool.
func (e *DeleteEngine) hashPhase(job *DeleteJob) {
	phaseStart := time.Now()
	e.runPool(job, func(f *FileDeleteState) {
		job.lock()
		if job.Cancelled {
			job.unlock()
			return
		}
		f.Status = DeleteVerifying
		localPath, filename := f.LocalPath, f.Filename
		job.unlock()
		e.publishProgress(job)

		sum, err := computeMD5(localPath)
		job.lock()
		if err != nil {
			f.Status = DeleteFailed
			f.ErrorMessage = fmt.Sprintf("MD5 computation failed: %v", err)
		} else {
			f.LocalMD5 = sum
		}
		job.unlock()

		if err != nil {
			e.audit.Error(audit.CategoryDelete, "md5_failed",
				fmt.Sprintf("MD5 failed for %s: %v", filename, err),
				map[string]any{"file": filename, "error": err.Error()})
		}
	})
	if e.metrics != nil {
		e.metrics.RecordDeletePhase("hash", time.Since(phaseStart))
	}
}

// verifyPhase compares each file against its stored object. Size must
// match; MD5 must also match unless the ETag is multipart.
func (e *DeleteEngine) verifyPhase(ctx context.Context, job *DeleteJob, store Store) {
	phaseStart := time.Now()
	e.runPool(job, func(f *FileDeleteState) {
		job.lock()
		if job.Cancelled || f.Status == DeleteFailed {
			job.unlock()
			return
		}
		bucket, s3Path := f.S3Bucket, f.S3Path
		fileSize, localMD5 := f.FileSize, f.LocalMD5
		job.unlock()

		meta, err := store.HeadMetadata(ctx, bucket, s3Path)

		job.lock()
		switch {
		case errors.Is(err, s3gw.ErrObjectNotFound):
			f.Status = DeleteFailed
			f.ErrorMessage = fmt.Sprintf("S3 object not found: %v", err)
		case err != nil:
			f.Status = DeleteFailed
			f.ErrorMessage = fmt.Sprintf("S3 verification failed: %v", err)
		case meta == nil:
			f.Status = DeleteFailed
			f.ErrorMessage = "S3 object not found"
		default:
			etag := strings.Trim(meta.ETag, `"`)
			f.S3ETag = etag
			f.S3Size = meta.Size
			switch {
			case meta.Size != fileSize:
				f.Status = DeleteMismatch
				f.ErrorMessage = fmt.Sprintf("Size mismatch: local=%d, s3=%d", fileSize, meta.Size)
			case isMultipartETag(etag):
				f.Status = DeleteVerified
				f.Verification = VerificationSize
			case etag == localMD5:
				f.Status = DeleteVerified
				f.Verification = VerificationMD5Size
			default:
				f.Status = DeleteMismatch
				f.ErrorMessage = fmt.Sprintf("MD5 mismatch: local=%s, s3=%s", localMD5, etag)
			}
		}
		job.unlock()
		e.publishProgress(job)
	})
	if e.metrics != nil {
		e.metrics.RecordDeletePhase("verify", time.Since(phaseStart))
	}
}

// deletePhase unlinks verified files one at a time.
func (e *DeleteEngine) deletePhase(job *DeleteJob) {
	phaseStart := time.Now()
	job.lock()
	job.Status = DeleteJobDeleting
	files := make([]*FileDeleteState, len(job.Files))
	copy(files, job.Files)
	job.unlock()
	e.publishProgress(job)

	for _, f := range files {
		job.lock()
		if job.Cancelled {
			job.unlock()
			e.finalizeCancelled(job)
			return
		}
		if f.Status != DeleteVerified {
			job.unlock()
			continue
		}
		f.Status = DeleteDeleting
		localPath, filename, s3Path, size := f.LocalPath, f.Filename, f.S3Path, f.FileSize
		job.unlock()
		e.publishProgress(job)

		err := os.Remove(localPath)
		job.lock()
		if err != nil {
			f.Status = DeleteFailed
			f.ErrorMessage = fmt.Sprintf("Delete failed: %v", err)
		} else {
			f.Status = DeleteDeleted
		}
		job.unlock()

		if err != nil {
			e.audit.Error(audit.CategoryDelete, "delete_failed",
				fmt.Sprintf("Failed to delete %s: %v", filename, err),
				map[string]any{"file": filename, "error": err.Error()})
		} else {
			e.audit.Info(audit.CategoryDelete, "file_deleted",
				fmt.Sprintf("Deleted %s", filename),
				map[string]any{
					"file":       filename,
					"local_path": localPath,
					"s3_path":    s3Path,
					"size":       size,
				})
		}
		e.publishProgress(job)
	}
	if e.metrics != nil {
		e.metrics.RecordDeletePhase("delete", time.Since(phaseStart))
	}
}

// runPool feeds every file in the job through fn on the worker pool.
func (e *DeleteEngine) runPool(job *DeleteJob, fn func(*FileDeleteState)) {
	job.lock()
	files := make([]*FileDeleteState, len(job.Files))
	copy(files, job.Files)
	job.unlock()

	work := make(chan *FileDeleteState)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				fn(f)
			}
		}()
	}
	for _, f := range files {
		work <- f
	}
	close(work)
	wg.Wait()
}

func (e *DeleteEngine) bailIfCancelled(job *DeleteJob) bool {
	job.lock()
	cancelled := job.Cancelled
	job.unlock()
	if cancelled {
		e.finalizeCancelled(job)
	}
	return cancelled
}

// finalizeCancelled parks files that never reached deletion and closes
// out the job.
func (e *DeleteEngine) finalizeCancelled(job *DeleteJob) {
	now := time.Now().UTC()
	job.lock()
	for _, f := range job.Files {
		switch f.Status {
		case DeletePending, DeleteVerifying, DeleteVerified:
			f.Status = DeleteCancelled
		}
	}
	job.Status = DeleteJobCancelled
	job.CompletedAt = &now
	job.unlock()

	e.audit.Info(audit.CategoryDelete, "job_cancelled",
		"Delete job cancelled", map[string]any{"job_id": job.ID})
	e.publishTerminal(job)
}

func (e *DeleteEngine) publishProgress(job *DeleteJob) {
	if !e.hub.HasSubscribers(job.ID) {
		return
	}
	e.hub.Publish(job.ID, events.New(events.TypeDeleteProgress).
		With("job", job.ProgressDict()))
}

func (e *DeleteEngine) publishTerminal(job *DeleteJob) {
	e.hub.Publish(job.ID, events.New(events.TypeDeleteComplete).
		With("job", job.Dict()).
		AsTerminal())
}

// deleteSource adapts the engine's job table to the stream hub.
type deleteSource struct{ e *DeleteEngine }

func (s deleteSource) Snapshot(jobID string) (events.Event, bool, bool) {
	job, ok := s.e.Job(jobID)
	if !ok {
		return events.Event{}, false, false
	}
	job.lock()
	terminal := job.terminal()
	job.unlock()
	return events.Event{Type: events.TypeDeleteProgress, Payload: job.Dict()}, terminal, true
}

// StreamSource exposes delete jobs to events.Hub.Stream.
func (e *DeleteEngine) StreamSource() events.Source {
	return deleteSource{e}
}

// computeMD5 hashes a file in fixed-size chunks.
func computeMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, md5ChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isMultipartETag reports whether an ETag came from a multipart upload,
// in which case it is not an MD5 of the object.
func isMultipartETag(etag string) bool {
	return strings.Contains(etag, "-")
}

// isWritable reports whether the current user can modify the file.
func isWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}
