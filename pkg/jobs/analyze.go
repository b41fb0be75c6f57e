package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/cache"
	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/recording"
)

// Analyze runs the job through timestamp extraction and duplicate
// detection. Parsing fans out on the CPU pool, store lookups on the I/O
// pool; progress streams to subscribers after every file.
//
// When useCache is false every duplicate check goes straight to the
// store and nothing is written back.
//
// Returns:
//   - *UploadJob: The analyzed job, nil when jobID is unknown
func (e *UploadEngine) Analyze(ctx context.Context, jobID string, target Target, useCache bool) *UploadJob {
	job, ok := e.Job(jobID)
	if !ok {
		return nil
	}

	job.lock()
	job.Status = StatusAnalyzing
	total := len(job.Files)
	job.unlock()

	e.audit.Info(audit.CategoryAnalysis, "analysis_started",
		fmt.Sprintf("Starting analysis of %d files", total),
		map[string]any{"job_id": jobID, "total_files": total})

	store, err := e.newStore(ctx, target.Profile, target.Region)
	if err != nil {
		job.lock()
		job.Status = StatusFailed
		for _, f := range job.Files {
			f.Status = StatusFailed
			f.ErrorMessage = fmt.Sprintf("Failed to create S3 client: %v", err)
		}
		job.unlock()
		e.publishTerminal(job)
		return job
	}

	e.parseFiles(job)
	e.checkDuplicates(ctx, job, store, target.Bucket, useCache)

	job.lock()
	job.resolveAnalysisStatus()
	ready := job.countStatus(StatusReady)
	failed := job.countStatus(StatusFailed)
	duplicates := 0
	for _, f := range job.Files {
		if f.IsDuplicate {
			duplicates++
		}
	}
	job.unlock()

	e.audit.Info(audit.CategoryAnalysis, "analysis_completed",
		fmt.Sprintf("Analysis complete: %d ready, %d failed, %d duplicates", ready, failed, duplicates),
		map[string]any{
			"job_id":     jobID,
			"ready":      ready,
			"failed":     failed,
			"duplicates": duplicates,
		})
	return job
}

// AnalyzeAndNotify wraps Analyze with the stream envelopes the SSE layer
// expects: an analysis_complete terminal, or an auto_upload_starting
// handoff when the job continues straight into the upload phase.
//
// Returns:
//   - bool: true when the caller should start the upload phase
func (e *UploadEngine) AnalyzeAndNotify(ctx context.Context, jobID string, target Target, useCache bool) bool {
	job := e.Analyze(ctx, jobID, target, useCache)
	if job == nil {
		return false
	}

	job.lock()
	continueToUpload := job.AutoUpload && !job.Cancelled && job.hasValidUploadableFiles()
	job.unlock()

	if continueToUpload {
		e.hub.Publish(jobID, events.New(events.TypeAutoUploadStarting).
			With("job_id", jobID).
			With("job", job.Dict()))
		return true
	}

	e.hub.Publish(jobID, events.New(events.TypeAnalysisComplete).
		With("job", job.Dict()).
		AsTerminal())
	return false
}

// parseFiles extracts start times on the CPU pool and derives object
// keys. Files whose recordings yield no timestamp fail here.
func (e *UploadEngine) parseFiles(job *UploadJob) {
	job.lock()
	for _, f := range job.Files {
		f.Status = StatusAnalyzing
	}
	pending := make([]*FileUploadState, len(job.Files))
	copy(pending, job.Files)
	job.unlock()
	e.publishProgress(job)

	work := make(chan *FileUploadState)
	var wg sync.WaitGroup
	for i := 0; i < e.cpuWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				e.parseOne(job, f)
			}
		}()
	}
	for _, f := range pending {
		work <- f
	}
	close(work)
	wg.Wait()
}

func (e *UploadEngine) parseOne(job *UploadJob, f *FileUploadState) {
	start, err := e.parse(f.LocalPath)

	job.lock()
	if err != nil {
		f.Status = StatusFailed
		f.ErrorMessage = err.Error()
	} else {
		t := start
		f.StartTime = &t
		f.IsValid = recording.IsValidTimestamp(start)
		f.S3Path = recording.GenerateKey(start, f.Filename)
	}
	filename := f.Filename
	job.unlock()

	if err != nil {
		e.audit.Error(audit.CategoryAnalysis, "file_analysis_failed",
			fmt.Sprintf("Failed to analyze %s: %v", filename, err),
			map[string]any{"job_id": job.ID, "filename": filename, "error": err.Error()})
	}
	e.publishProgress(job)
}

// checkDuplicates resolves is_duplicate for every parsed file on the I/O
// pool. Lookup order is memory tier, SQLite tier, then a HEAD against
// the store; store answers are written back through both tiers.
func (e *UploadEngine) checkDuplicates(ctx context.Context, job *UploadJob, store Store, bucket string, useCache bool) {
	job.lock()
	var pending []*FileUploadState
	for _, f := range job.Files {
		if f.Status != StatusFailed {
			pending = append(pending, f)
		}
	}
	job.unlock()

	work := make(chan *FileUploadState)
	var wg sync.WaitGroup
	for i := 0; i < e.ioWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				e.checkDuplicateOne(ctx, job, f, store, bucket, useCache)
			}
		}()
	}
	for _, f := range pending {
		work <- f
	}
	close(work)
	wg.Wait()
}

func (e *UploadEngine) checkDuplicateOne(ctx context.Context, job *UploadJob, f *FileUploadState, store Store, bucket string, useCache bool) {
	job.lock()
	s3Path := f.S3Path
	filename := f.Filename
	fileSize := f.FileSize
	job.unlock()

	duplicate, err := e.lookupExists(ctx, store, bucket, s3Path, filename, fileSize, useCache)

	job.lock()
	if err != nil {
		f.Status = StatusFailed
		f.ErrorMessage = err.Error()
	} else {
		f.IsDuplicate = duplicate
		f.Status = StatusReady
	}
	valid := f.IsValid
	job.unlock()

	if err != nil {
		e.audit.Error(audit.CategoryAnalysis, "file_analysis_failed",
			fmt.Sprintf("Failed to analyze %s: %v", filename, err),
			map[string]any{"job_id": job.ID, "filename": filename, "error": err.Error()})
	} else {
		e.audit.Info(audit.CategoryAnalysis, "file_analysis_completed",
			fmt.Sprintf("Analyzed %s", filename),
			map[string]any{
				"job_id":       job.ID,
				"filename":     filename,
				"file_size":    fileSize,
				"s3_path":      s3Path,
				"is_duplicate": duplicate,
				"is_valid":     valid,
			})
	}
	e.publishProgress(job)
}

// lookupExists answers whether bucket/s3Path already holds an object.
func (e *UploadEngine) lookupExists(ctx context.Context, store Store, bucket, s3Path, filename string, fileSize int64, useCache bool) (bool, error) {
	if s3Path == "" {
		return false, nil
	}

	if useCache {
		if e.paths != nil {
			if exists, ok := e.paths.Get(bucket, s3Path); ok {
				return exists, nil
			}
		}
		if e.cache != nil {
			existence, err := e.cache.CheckPath(ctx, bucket, s3Path)
			if err == nil && existence != cache.ExistsUnknown {
				exists := existence == cache.ExistsYes
				if e.paths != nil {
					e.paths.Set(bucket, s3Path, exists)
				}
				return exists, nil
			}
		}
	}

	exists, err := store.Head(ctx, bucket, s3Path)
	if err != nil {
		return false, err
	}
	if useCache {
		if e.cache != nil {
			_ = e.cache.Update(ctx, bucket, cache.Entry{
				S3Path:   s3Path,
				Exists:   exists,
				Filename: filename,
				FileSize: fileSize,
			})
		}
		if e.paths != nil {
			e.paths.Set(bucket, s3Path, exists)
		}
	}
	return exists, nil
}
