package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/modaq/uploader/internal/logger"
	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/pathcache"
	"github.com/modaq/uploader/pkg/recording"
)

// UploadEngine owns every upload and scan job in the process.
type UploadEngine struct {
	mu    sync.Mutex
	jobs  map[string]*UploadJob
	scans map[string]*ScanJob

	cache    DedupCache
	paths    *pathcache.Cache
	audit    *audit.Log
	hub      *events.Hub
	newStore StoreFactory
	parse    ParseFunc
	metrics  Metrics

	ioWorkers  int
	cpuWorkers int
}

// UploadEngineConfig wires an UploadEngine's collaborators. Cache, Audit,
// and Hub are required.
type UploadEngineConfig struct {
	Cache DedupCache
	Audit *audit.Log
	Hub   *events.Hub

	// Paths optionally fronts the cache for repeated key lookups.
	Paths *pathcache.Cache
	// NewStore defaults to DefaultStoreFactory.
	NewStore StoreFactory
	// Parse defaults to recording.ExtractStartTime.
	Parse ParseFunc
	// IOWorkers defaults to DefaultIOWorkers.
	IOWorkers int
	// CPUWorkers defaults to max(1, NumCPU-1).
	CPUWorkers int
	Metrics    Metrics
}

// NewUploadEngine returns an engine with no jobs.
func NewUploadEngine(cfg UploadEngineConfig) *UploadEngine {
	if cfg.NewStore == nil {
		cfg.NewStore = DefaultStoreFactory
	}
	if cfg.Parse == nil {
		cfg.Parse = recording.ExtractStartTime
	}
	if cfg.IOWorkers <= 0 {
		cfg.IOWorkers = DefaultIOWorkers
	}
	if cfg.CPUWorkers <= 0 {
		cfg.CPUWorkers = cpuWorkerCount()
	}
	return &UploadEngine{
		jobs:       make(map[string]*UploadJob),
		scans:      make(map[string]*ScanJob),
		cache:      cfg.Cache,
		paths:      cfg.Paths,
		audit:      cfg.Audit,
		hub:        cfg.Hub,
		newStore:   cfg.NewStore,
		parse:      cfg.Parse,
		metrics:    cfg.Metrics,
		ioWorkers:  cfg.IOWorkers,
		cpuWorkers: cfg.CPUWorkers,
	}
}

// CreateJob materializes file states for every path that exists and
// registers the job. Missing paths are silently dropped, matching the
// bulk-selection UI where files can vanish between listing and submit.
//
// Parameters:
//   - paths: Local recording paths, in presentation order
//   - autoUpload: Start uploading as soon as analysis finishes
//   - tempDir: Optional directory reclaimed when the job reaches terminal
//
// Returns:
//   - *UploadJob: The registered job; may hold zero files
func (e *UploadEngine) CreateJob(paths []string, autoUpload bool, tempDir string) *UploadJob {
	job := &UploadJob{
		ID:             uuid.NewString(),
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
		AutoUpload:     autoUpload,
		TempDir:        tempDir,
		PreFilterStats: map[string]any{},
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		job.Files = append(job.Files, &FileUploadState{
			Filename:  filepath.Base(p),
			LocalPath: abs,
			FileSize:  info.Size(),
			Status:    StatusPending,
			IsValid:   true,
		})
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.mu.Unlock()

	e.audit.Info(audit.CategoryUpload, "upload_job_created",
		fmt.Sprintf("Created upload job with %d files", len(job.Files)),
		map[string]any{
			"job_id":      job.ID,
			"total_files": len(job.Files),
			"total_bytes": job.totalBytes(),
			"auto_upload": autoUpload,
		})
	return job
}

// Job returns a job by id.
func (e *UploadEngine) Job(jobID string) (*UploadJob, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	return job, ok
}

// ActiveJobs returns every job not in a terminal status.
func (e *UploadEngine) ActiveJobs() []*UploadJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	var active []*UploadJob
	for _, job := range e.jobs {
		job.lock()
		terminal := job.Status.Terminal()
		job.unlock()
		if !terminal {
			active = append(active, job)
		}
	}
	return active
}

// Cancel flips the job's cancel flag and marks files that have not
// started as cancelled. In-flight transfers finish so no half-written
// objects land in the store.
//
// Returns:
//   - bool: false when the job id is unknown
func (e *UploadEngine) Cancel(jobID string) bool {
	job, ok := e.Job(jobID)
	if !ok {
		return false
	}

	job.lock()
	job.Cancelled = true
	for _, f := range job.Files {
		if f.Status == StatusPending || f.Status == StatusReady {
			f.Status = StatusCancelled
		}
	}
	job.unlock()

	e.reclaimTempDir(job)

	e.audit.Warning(audit.CategoryUpload, "upload_job_cancelled",
		fmt.Sprintf("Upload job %s cancelled", jobID),
		map[string]any{"job_id": jobID})
	return true
}

// CleanupOldJobs evicts terminal jobs whose completion is older than
// maxAge and reports how many were removed.
func (e *UploadEngine) CleanupOldJobs(maxAge time.Duration) int {
	now := time.Now().UTC()
	removed := 0

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, job := range e.jobs {
		job.lock()
		old := job.CompletedAt != nil && now.Sub(*job.CompletedAt) > maxAge
		job.unlock()
		if old {
			delete(e.jobs, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps terminal jobs every interval until ctx ends.
func (e *UploadEngine) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.CleanupOldJobs(maxAge); n > 0 {
				logger.Debug("evicted finished upload jobs", logger.Count(n))
			}
		}
	}
}

// reclaimTempDir removes the job's temp directory, once.
func (e *UploadEngine) reclaimTempDir(job *UploadJob) {
	job.lock()
	dir := job.TempDir
	job.TempDir = ""
	job.unlock()

	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to reclaim temp dir", "dir", dir, logger.Err(err))
	}
}

// publishProgress streams the compact snapshot when anyone is listening.
func (e *UploadEngine) publishProgress(job *UploadJob) {
	if !e.hub.HasSubscribers(job.ID) {
		return
	}
	e.hub.Publish(job.ID, job.progressEvent())
}

// publishTerminal always ships the full snapshot; terminal envelopes must
// reach late subscribers through the queue, not just the snapshot race.
func (e *UploadEngine) publishTerminal(job *UploadJob) {
	e.hub.Publish(job.ID, job.terminalEvent())
}

// uploadSource adapts the engine's job table to the stream hub.
type uploadSource struct{ e *UploadEngine }

func (s uploadSource) Snapshot(jobID string) (events.Event, bool, bool) {
	job, ok := s.e.Job(jobID)
	if !ok {
		return events.Event{}, false, false
	}
	job.lock()
	terminal := job.Status.Terminal()
	job.unlock()
	return events.Event{Payload: job.Dict()}, terminal, true
}

// StreamSource exposes upload jobs to events.Hub.Stream.
func (e *UploadEngine) StreamSource() events.Source {
	return uploadSource{e}
}
