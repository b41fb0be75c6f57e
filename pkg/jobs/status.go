package jobs

// UploadStatus is the state of a file or job in the upload engine.
type UploadStatus string

const (
	StatusPending   UploadStatus = "pending"
	StatusAnalyzing UploadStatus = "analyzing"
	StatusReady     UploadStatus = "ready"
	StatusUploading UploadStatus = "uploading"
	StatusCompleted UploadStatus = "completed"
	StatusFailed    UploadStatus = "failed"
	StatusSkipped   UploadStatus = "skipped"
	StatusCancelled UploadStatus = "cancelled"
)

// Terminal reports whether a job in this status can never move again.
// Skipped is terminal for files but not a job status.
func (s UploadStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// DeleteStatus is the state of a file in the delete engine.
type DeleteStatus string

const (
	DeletePending   DeleteStatus = "pending"
	DeleteVerifying DeleteStatus = "verifying"
	DeleteVerified  DeleteStatus = "verified"
	DeleteDeleting  DeleteStatus = "deleting"
	DeleteDeleted   DeleteStatus = "deleted"
	DeleteMismatch  DeleteStatus = "mismatch"
	DeleteFailed    DeleteStatus = "failed"
	DeleteCancelled DeleteStatus = "cancelled"
)

// Verification levels reported for verified delete files.
const (
	VerificationMD5Size = "md5+size"
	VerificationSize    = "size"
)
