package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds job-scoped logging context that travels with the
// context.Context through the upload and delete engines.
type LogContext struct {
	JobID     string // upload/delete/scan job id
	Category  string // audit category (upload, analysis, delete, scan, ...)
	RequestID string // HTTP request id when the work originated from the API
}

// WithContext returns a new context carrying the given LogContext.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// WithJob returns a context whose log records carry the job id and category.
func WithJob(ctx context.Context, jobID, category string) context.Context {
	lc := FromContext(ctx).Clone()
	if lc == nil {
		lc = &LogContext{}
	}
	lc.JobID = jobID
	lc.Category = category
	return WithContext(ctx, lc)
}

// Clone creates a copy of the LogContext.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}
