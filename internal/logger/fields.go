package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these consistently across
// the upload engine, delete engine, cache, gateway, and API layers so log
// output stays greppable and aggregatable.
const (
	// Request handling
	KeyRequestID = "request_id"
	KeyMethod    = "method"
	KeyPath      = "path"
	KeyStatus    = "status"
	KeyRemote    = "remote"

	// Jobs
	KeyJobID     = "job_id"
	KeyCategory  = "category"
	KeyEvent     = "event"
	KeyJobStatus = "job_status"

	// Files
	KeyFilename  = "filename"
	KeyFilePath  = "file_path"
	KeyFileSize  = "file_size"
	KeyObjectKey = "s3_path"

	// Object store
	KeyBucket  = "bucket"
	KeyPrefix  = "prefix"
	KeyProfile = "profile"
	KeyRegion  = "region"
	KeyETag    = "etag"

	// Measurements
	KeyDurationMs = "duration_ms"
	KeyBytes      = "bytes"
	KeyCount      = "count"
	KeyWorkers    = "workers"

	// Errors
	KeyError = "error"
)

// ----------------------------------------------------------------------------
// Typed attribute helpers
// ----------------------------------------------------------------------------

// ObjectKey returns a slog.Attr for an object store key.
func ObjectKey(key string) slog.Attr {
	return slog.String(KeyObjectKey, key)
}

// JobID returns a slog.Attr for a job id.
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// Count returns a slog.Attr for a generic count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// Err returns a slog.Attr for an error value. Nil-safe.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
