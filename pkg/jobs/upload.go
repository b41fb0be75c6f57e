package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/modaq/uploader/internal/logger"
	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/cache"
)

// Upload transfers every ready file in the job. Duplicates and invalid
// timestamps are skipped up front; the rest fan out on the I/O pool.
// The terminal envelope goes out before the bookkeeping (journal, CSV,
// log shipping) so subscribers unblock immediately.
func (e *UploadEngine) Upload(ctx context.Context, jobID string, target Target, skipDuplicates bool) {
	job, ok := e.Job(jobID)
	if !ok {
		return
	}
	ctx = logger.WithJob(ctx, jobID, "upload")

	now := time.Now().UTC()
	job.lock()
	job.Status = StatusUploading
	job.StartedAt = &now
	job.unlock()

	store, err := e.newStore(ctx, target.Profile, target.Region)
	if err != nil {
		job.lock()
		job.Status = StatusFailed
		for _, f := range job.Files {
			if f.Status == StatusReady {
				f.Status = StatusFailed
				f.ErrorMessage = fmt.Sprintf("Failed to create S3 client: %v", err)
			}
		}
		job.unlock()
		e.publishTerminal(job)
		return
	}

	pending := e.filterUploadable(job, skipDuplicates)
	e.publishProgress(job)

	work := make(chan *FileUploadState)
	var wg sync.WaitGroup
	for i := 0; i < e.ioWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range work {
				e.uploadOne(ctx, job, f, store, target.Bucket)
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
		work <- f
	}
	close(work)
	wg.Wait()

	e.finishJob(ctx, job, store, target.Bucket)
}

// filterUploadable skips duplicates and invalid timestamps and returns
// the files that will actually transfer.
func (e *UploadEngine) filterUploadable(job *UploadJob, skipDuplicates bool) []*FileUploadState {
	type skip struct {
		filename string
		reason   string
	}

	job.lock()
	var pending []*FileUploadState
	var skips []skip
	for _, f := range job.Files {
		if f.Status != StatusReady {
			continue
		}
		if skipDuplicates && f.IsDuplicate {
			f.Status = StatusSkipped
			f.BytesUploaded = f.FileSize
			skips = append(skips, skip{f.Filename, "duplicate"})
			continue
		}
		if !f.IsValid {
			f.Status = StatusSkipped
			f.ErrorMessage = "Invalid timestamp (pre-1980)"
			skips = append(skips, skip{f.Filename, "invalid_timestamp"})
			continue
		}
		pending = append(pending, f)
	}
	job.unlock()

	for _, s := range skips {
		meta := map[string]any{"job_id": job.ID, "filename": s.filename, "reason": s.reason}
		if s.reason == "duplicate" {
			e.audit.Info(audit.CategoryUpload, "file_upload_skipped",
				fmt.Sprintf("Skipped duplicate: %s", s.filename), meta)
		} else {
			e.audit.Warning(audit.CategoryUpload, "file_upload_skipped",
				fmt.Sprintf("Skipped invalid timestamp: %s", s.filename), meta)
		}
	}
	return pending
}

// uploadOne transfers a single file. Status flips to uploading inside
// the worker so queued files stay ready until a slot picks them up.
func (e *UploadEngine) uploadOne(ctx context.Context, job *UploadJob, f *FileUploadState, store Store, bucket string) {
	started := time.Now().UTC()
	job.lock()
	if job.Cancelled {
		f.Status = StatusCancelled
		job.unlock()
		return
	}
	f.Status = StatusUploading
	f.UploadStartedAt = &started
	filename, localPath, s3Path, fileSize := f.Filename, f.LocalPath, f.S3Path, f.FileSize
	job.unlock()

	e.audit.Info(audit.CategoryUpload, "file_upload_started",
		fmt.Sprintf("Uploading %s", filename),
		map[string]any{
			"job_id":    job.ID,
			"filename":  filename,
			"file_size": fileSize,
			"s3_path":   s3Path,
		})
	e.publishProgress(job)

	_, err := store.Put(ctx, bucket, s3Path, localPath, func(uploaded, total int64) {
		job.lock()
		f.BytesUploaded = uploaded
		job.unlock()
		e.publishProgress(job)
	})

	done := time.Now().UTC()
	job.lock()
	f.UploadCompletedAt = &done
	if err != nil {
		f.Status = StatusFailed
		f.ErrorMessage = err.Error()
	} else {
		f.Status = StatusCompleted
		f.BytesUploaded = fileSize
	}
	duration := f.UploadDuration()
	job.unlock()

	if err != nil {
		e.audit.Error(audit.CategoryUpload, "file_upload_failed",
			fmt.Sprintf("Failed to upload %s: %v", filename, err),
			map[string]any{"job_id": job.ID, "filename": filename, "error": err.Error()})
		if e.metrics != nil {
			e.metrics.RecordFileUpload("failed", fileSize, done.Sub(started))
		}
	} else {
		var seconds any
		if duration != nil {
			seconds = *duration
		}
		e.audit.Info(audit.CategoryUpload, "file_upload_completed",
			fmt.Sprintf("Uploaded %s", filename),
			map[string]any{
				"job_id":                  job.ID,
				"filename":                filename,
				"file_size":               fileSize,
				"upload_duration_seconds": seconds,
				"s3_path":                 s3Path,
			})
		e.recordUploaded(ctx, bucket, s3Path, filename, fileSize)
		if e.metrics != nil {
			e.metrics.RecordFileUpload("completed", fileSize, done.Sub(started))
		}
	}
	e.publishProgress(job)
}

// recordUploaded marks the object present in both cache tiers. Failures
// only cost a future HEAD.
func (e *UploadEngine) recordUploaded(ctx context.Context, bucket, s3Path, filename string, fileSize int64) {
	if e.cache != nil {
		if err := e.cache.Update(ctx, bucket, cache.Entry{
			S3Path:   s3Path,
			Exists:   true,
			Filename: filename,
			FileSize: fileSize,
		}); err != nil {
			logger.DebugCtx(ctx, "cache update failed after upload", logger.ObjectKey(s3Path), logger.Err(err))
		}
	}
	if e.paths != nil {
		e.paths.Set(bucket, s3Path, true)
	}
}

// finishJob resolves the terminal status, publishes the terminal
// envelope, then runs the bookkeeping that nobody is waiting on.
func (e *UploadEngine) finishJob(ctx context.Context, job *UploadJob, store Store, bucket string) {
	completedAt := time.Now().UTC()

	job.lock()
	job.CompletedAt = &completedAt
	job.resolveUploadStatus()
	status := job.Status
	uploaded := job.countStatus(StatusCompleted)
	skipped := job.countStatus(StatusSkipped)
	failed := job.countStatus(StatusFailed)
	totalFiles := len(job.Files)
	bytesUploaded := job.successfullyUploadedBytes()
	duration := job.totalDuration()
	speed := job.averageSpeedMbps()

	fileSummary := make([]map[string]any, totalFiles)
	records := make([]audit.UploadRecord, totalFiles)
	for i, f := range job.Files {
		var d any
		if v := f.UploadDuration(); v != nil {
			d = *v
		}
		fileSummary[i] = map[string]any{
			"filename":         f.Filename,
			"s3_path":          f.S3Path,
			"status":           string(f.Status),
			"file_size":        f.FileSize,
			"duration_seconds": d,
		}
		records[i] = audit.UploadRecord{
			Filename:          f.Filename,
			FileSizeBytes:     f.FileSize,
			S3Path:            f.S3Path,
			Status:            string(f.Status),
			DataStartTime:     f.StartTime,
			UploadStartedAt:   f.UploadStartedAt,
			UploadCompletedAt: f.UploadCompletedAt,
			DurationSeconds:   f.UploadDuration(),
			IsDuplicate:       f.IsDuplicate,
			IsValid:           f.IsValid,
			ErrorMessage:      f.ErrorMessage,
		}
	}
	job.unlock()

	e.reclaimTempDir(job)
	e.publishTerminal(job)
	if e.metrics != nil {
		e.metrics.RecordJob(string(status), totalFiles)
	}

	var durationVal any
	if duration != nil {
		durationVal = *duration
	}
	summary := map[string]any{
		"job_id":               job.ID,
		"status":               string(status),
		"uploaded":             uploaded,
		"skipped":              skipped,
		"failed":               failed,
		"total_bytes_uploaded": bytesUploaded,
		"duration_seconds":     durationVal,
		"avg_speed_mbps":       speed,
		"files":                fileSummary,
	}

	e.audit.Info(audit.CategoryUpload, "upload_job_completed",
		fmt.Sprintf("Upload job completed: %d uploaded, %d skipped, %d failed", uploaded, skipped, failed),
		summary)

	snapshot := map[string]any{
		"timestamp": completedAt.Format(time.RFC3339Nano),
		"event":     "upload_job_completed",
	}
	for k, v := range summary {
		snapshot[k] = v
	}
	if _, err := e.audit.SaveJobJSONL(job.ID, snapshot, completedAt); err != nil {
		logger.WarnCtx(ctx, "failed to save job summary", logger.Err(err))
	}
	if _, err := e.audit.SaveJobCSV(job.ID, records, completedAt); err != nil {
		logger.WarnCtx(ctx, "failed to save job CSV", logger.Err(err))
	}
	if _, err := e.audit.Ship(ctx, store, bucket, "logs/"); err != nil {
		logger.DebugCtx(ctx, "log shipping failed", logger.Err(err))
	}
}
