package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modaq/uploader/internal/logger"
	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/recording"
)

// Pipeline analyzes and uploads in one pass: as soon as a file's
// timestamp parses and its duplicate check clears, it goes to the
// upload pool, so transfers start while later files are still parsing.
// Large batches finish sooner than the two-phase Analyze/Upload path.
func (e *UploadEngine) Pipeline(ctx context.Context, jobID string, target Target, skipDuplicates, useCache bool) {
	job, ok := e.Job(jobID)
	if !ok {
		return
	}
	ctx = logger.WithJob(ctx, jobID, "upload")

	now := time.Now().UTC()
	job.lock()
	job.Status = StatusUploading
	job.StartedAt = &now
	total := len(job.Files)
	job.unlock()

	e.audit.Info(audit.CategoryUpload, "pipeline_started",
		fmt.Sprintf("Starting analyze-and-upload pipeline for %d files", total),
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
		return
	}

	job.lock()
	pending := make([]*FileUploadState, len(job.Files))
	copy(pending, job.Files)
	for _, f := range pending {
		f.Status = StatusAnalyzing
	}
	job.unlock()
	e.publishProgress(job)

	// Buffered so parse workers never block on a busy upload pool.
	uploads := make(chan *FileUploadState, len(pending))
	var uploadWG sync.WaitGroup
	for i := 0; i < e.ioWorkers; i++ {
		uploadWG.Add(1)
		go func() {
			defer uploadWG.Done()
			for f := range uploads {
				e.uploadOne(ctx, job, f, store, target.Bucket)
			}
		}()
	}

	parseWork := make(chan *FileUploadState)
	var parseWG sync.WaitGroup
	for i := 0; i < e.cpuWorkers; i++ {
		parseWG.Add(1)
		go func() {
			defer parseWG.Done()
			for f := range parseWork {
				e.pipelineOne(ctx, job, f, store, target.Bucket, skipDuplicates, useCache, uploads)
			}
		}()
	}
	for _, f := range pending {
		job.lock()
		cancelled := job.Cancelled
		job.unlock()
		if cancelled {
			break
		}
		parseWork <- f
	}
	close(parseWork)
	parseWG.Wait()
	close(uploads)
	uploadWG.Wait()

	e.finishJob(ctx, job, store, target.Bucket)
}

// pipelineOne carries one file from parse through the skip decision and
// hands survivors to the upload pool.
func (e *UploadEngine) pipelineOne(ctx context.Context, job *UploadJob, f *FileUploadState, store Store, bucket string, skipDuplicates, useCache bool, uploads chan<- *FileUploadState) {
	job.lock()
	if job.Cancelled {
		f.Status = StatusCancelled
		job.unlock()
		return
	}
	filename, localPath, fileSize := f.Filename, f.LocalPath, f.FileSize
	job.unlock()

	start, err := e.parse(localPath)
	if err != nil {
		job.lock()
		f.Status = StatusFailed
		f.ErrorMessage = err.Error()
		job.unlock()
		e.audit.Error(audit.CategoryAnalysis, "file_analysis_failed",
			fmt.Sprintf("Failed to analyze %s: %v", filename, err),
			map[string]any{"job_id": job.ID, "filename": filename, "error": err.Error()})
		e.publishProgress(job)
		return
	}

	s3Path := recording.GenerateKey(start, filename)
	valid := recording.IsValidTimestamp(start)
	duplicate, dupErr := e.lookupExists(ctx, store, bucket, s3Path, filename, fileSize, useCache)

	job.lock()
	t := start
	f.StartTime = &t
	f.IsValid = valid
	f.S3Path = s3Path
	if dupErr != nil {
		f.Status = StatusFailed
		f.ErrorMessage = dupErr.Error()
	} else {
		f.IsDuplicate = duplicate
		f.Status = StatusReady
	}
	job.unlock()

	if dupErr != nil {
		e.audit.Error(audit.CategoryAnalysis, "file_analysis_failed",
			fmt.Sprintf("Failed to analyze %s: %v", filename, dupErr),
			map[string]any{"job_id": job.ID, "filename": filename, "error": dupErr.Error()})
		e.publishProgress(job)
		return
	}

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
	e.publishProgress(job)

	if !valid {
		job.lock()
		f.Status = StatusSkipped
		f.ErrorMessage = "Invalid timestamp (pre-1980)"
		job.unlock()
		e.audit.Warning(audit.CategoryUpload, "file_upload_skipped",
			fmt.Sprintf("Skipped invalid timestamp: %s", filename),
			map[string]any{"job_id": job.ID, "filename": filename, "reason": "invalid_timestamp"})
		e.publishProgress(job)
		return
	}
	if skipDuplicates && duplicate {
		job.lock()
		f.Status = StatusSkipped
		f.BytesUploaded = fileSize
		job.unlock()
		e.audit.Info(audit.CategoryUpload, "file_upload_skipped",
			fmt.Sprintf("Skipped duplicate: %s", filename),
			map[string]any{"job_id": job.ID, "filename": filename, "reason": "duplicate"})
		e.publishProgress(job)
		return
	}

	uploads <- f
}
