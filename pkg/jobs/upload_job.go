package jobs

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/recording"
)

// FileUploadState tracks one recording through an upload job. Mutated
// only by engine workers holding the job's mutex.
type FileUploadState struct {
	Filename  string
	LocalPath string
	FileSize  int64

	Status            UploadStatus
	S3Path            string
	StartTime         *time.Time
	BytesUploaded     int64
	ErrorMessage      string
	IsDuplicate       bool
	IsValid           bool
	UploadStartedAt   *time.Time
	UploadCompletedAt *time.Time
}

// UploadDuration returns how long the file's transfer took, or nil while
// it has not finished.
func (f *FileUploadState) UploadDuration() *float64 {
	if f.UploadStartedAt == nil || f.UploadCompletedAt == nil {
		return nil
	}
	d := f.UploadCompletedAt.Sub(*f.UploadStartedAt).Seconds()
	return &d
}

// dict serializes the file for snapshots and API responses. Caller holds
// the job mutex.
func (f *FileUploadState) dict() map[string]any {
	progress := 0.0
	if f.FileSize > 0 {
		progress = math.Round(float64(f.BytesUploaded)/float64(f.FileSize)*1000) / 10
	}

	var duration, speed any
	if d := f.UploadDuration(); d != nil {
		duration = *d
		if *d > 0 {
			speed = math.Round(float64(f.FileSize)/(*d)/1024/1024*8*100) / 100
		}
	}

	return map[string]any{
		"filename":                f.Filename,
		"local_path":              f.LocalPath,
		"file_size":               f.FileSize,
		"file_size_formatted":     recording.FormatFileSize(f.FileSize),
		"status":                  string(f.Status),
		"s3_path":                 f.S3Path,
		"start_time":              isoPtr(f.StartTime),
		"bytes_uploaded":          f.BytesUploaded,
		"progress_percent":        progress,
		"error_message":           f.ErrorMessage,
		"is_duplicate":            f.IsDuplicate,
		"is_valid":                f.IsValid,
		"upload_started_at":       isoPtr(f.UploadStartedAt),
		"upload_completed_at":     isoPtr(f.UploadCompletedAt),
		"upload_duration_seconds": duration,
		"upload_speed_mbps":       speed,
	}
}

// UploadJob is an ordered batch of recordings moving through the upload
// state machine together.
type UploadJob struct {
	ID    string
	Files []*FileUploadState

	Status         UploadStatus
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Cancelled      bool
	AutoUpload     bool
	TempDir        string
	PreFilterStats map[string]any

	mu sync.Mutex
}

func (j *UploadJob) lock()   { j.mu.Lock() }
func (j *UploadJob) unlock() { j.mu.Unlock() }

// Callers below hold the job mutex unless noted.

func (j *UploadJob) totalBytes() int64 {
	var n int64
	for _, f := range j.Files {
		n += f.FileSize
	}
	return n
}

func (j *UploadJob) uploadedBytes() int64 {
	var n int64
	for _, f := range j.Files {
		n += f.BytesUploaded
	}
	return n
}

func (j *UploadJob) successfullyUploadedBytes() int64 {
	var n int64
	for _, f := range j.Files {
		if f.Status == StatusCompleted {
			n += f.FileSize
		}
	}
	return n
}

func (j *UploadJob) countStatus(statuses ...UploadStatus) int {
	n := 0
	for _, f := range j.Files {
		for _, s := range statuses {
			if f.Status == s {
				n++
				break
			}
		}
	}
	return n
}

func (j *UploadJob) progressPercent() float64 {
	total := j.totalBytes()
	if total == 0 {
		return 0
	}
	return math.Round(float64(j.uploadedBytes())/float64(total)*1000) / 10
}

func (j *UploadJob) etaSeconds() any {
	if j.StartedAt == nil {
		return nil
	}
	uploaded := j.uploadedBytes()
	if uploaded == 0 {
		return nil
	}
	elapsed := time.Since(*j.StartedAt).Seconds()
	if elapsed <= 0 {
		return nil
	}
	rate := float64(uploaded) / elapsed
	if rate <= 0 {
		return nil
	}
	return int64(float64(j.totalBytes()-uploaded) / rate)
}

func (j *UploadJob) totalDuration() *float64 {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	d := j.CompletedAt.Sub(*j.StartedAt).Seconds()
	return &d
}

func (j *UploadJob) averageSpeedMbps() any {
	d := j.totalDuration()
	if d == nil || *d <= 0 {
		return nil
	}
	return math.Round(float64(j.successfullyUploadedBytes())/(*d)/1024/1024*8*100) / 100
}

func (j *UploadJob) hasValidUploadableFiles() bool {
	for _, f := range j.Files {
		if f.Status == StatusReady && f.IsValid && !f.IsDuplicate {
			return true
		}
	}
	return false
}

// resolveAnalysisStatus derives the job status after analysis.
func (j *UploadJob) resolveAnalysisStatus() {
	if j.countStatus(StatusReady) > 0 {
		j.Status = StatusReady
	} else {
		j.Status = StatusFailed
	}
}

// resolveUploadStatus derives the job's terminal status after the upload
// phase. Partial success still counts as completed.
func (j *UploadJob) resolveUploadStatus() {
	switch {
	case j.Cancelled:
		j.Status = StatusCancelled
	case j.countStatus(StatusCompleted, StatusSkipped) == len(j.Files):
		j.Status = StatusCompleted
	case j.countStatus(StatusCompleted) > 0:
		j.Status = StatusCompleted
	default:
		j.Status = StatusFailed
	}
}

// Dict returns the job's full snapshot. Acquires the job mutex.
func (j *UploadJob) Dict() map[string]any {
	j.lock()
	defer j.unlock()
	return j.dictLocked()
}

func (j *UploadJob) dictLocked() map[string]any {
	files := make([]map[string]any, len(j.Files))
	for i, f := range j.Files {
		files[i] = f.dict()
	}

	var duration, durationFmt any
	if d := j.totalDuration(); d != nil {
		duration = *d
		durationFmt = fmt.Sprintf("%dm %ds", int(*d)/60, int(*d)%60)
	}

	return map[string]any{
		"job_id":                                j.ID,
		"status":                                string(j.Status),
		"files":                                 files,
		"total_files":                           len(j.Files),
		"files_completed":                       j.countStatus(StatusCompleted, StatusSkipped),
		"files_failed":                          j.countStatus(StatusFailed),
		"files_skipped":                         j.countStatus(StatusSkipped),
		"files_uploaded":                        j.countStatus(StatusCompleted),
		"total_bytes":                           j.totalBytes(),
		"total_bytes_formatted":                 recording.FormatFileSize(j.totalBytes()),
		"uploaded_bytes":                        j.uploadedBytes(),
		"uploaded_bytes_formatted":              recording.FormatFileSize(j.uploadedBytes()),
		"successfully_uploaded_bytes":           j.successfullyUploadedBytes(),
		"successfully_uploaded_bytes_formatted": recording.FormatFileSize(j.successfullyUploadedBytes()),
		"progress_percent":                      j.progressPercent(),
		"eta_seconds":                           j.etaSeconds(),
		"created_at":                            j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"started_at":                            isoPtr(j.StartedAt),
		"completed_at":                          isoPtr(j.CompletedAt),
		"total_upload_duration_seconds":         duration,
		"total_upload_duration_formatted":       durationFmt,
		"average_upload_speed_mbps":             j.averageSpeedMbps(),
		"cancelled":                             j.Cancelled,
		"auto_upload":                           j.AutoUpload,
		"has_valid_uploadable_files":            j.hasValidUploadableFiles(),
		"pre_filter_stats":                      j.PreFilterStats,
	}
}

// ProgressDict returns the compact snapshot streamed to subscribers: job
// aggregates plus only the files currently analyzing or uploading, so a
// twenty-thousand-file job does not ship its whole array on every tick.
func (j *UploadJob) ProgressDict() map[string]any {
	j.lock()
	defer j.unlock()

	var active []map[string]any
	for _, f := range j.Files {
		if f.Status == StatusUploading || f.Status == StatusAnalyzing {
			active = append(active, f.dict())
		}
	}

	return map[string]any{
		"job_id":                   j.ID,
		"status":                   string(j.Status),
		"progress_percent":         j.progressPercent(),
		"files_completed":          j.countStatus(StatusCompleted, StatusSkipped),
		"total_files":              len(j.Files),
		"uploaded_bytes_formatted": recording.FormatFileSize(j.uploadedBytes()),
		"total_bytes_formatted":    recording.FormatFileSize(j.totalBytes()),
		"eta_seconds":              j.etaSeconds(),
		"files_failed":             j.countStatus(StatusFailed),
		"files_skipped":            j.countStatus(StatusSkipped),
		"files_uploaded":           j.countStatus(StatusCompleted),
		"cancelled":                j.Cancelled,
		"files":                    active,
	}
}

// progressEvent wraps the compact snapshot in a tag-less envelope.
func (j *UploadJob) progressEvent() events.Event {
	return events.Event{Payload: j.ProgressDict()}
}

// terminalEvent wraps the full snapshot and marks the stream done.
func (j *UploadJob) terminalEvent() events.Event {
	return events.Event{Payload: j.Dict(), Terminal: true}
}

func isoPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
