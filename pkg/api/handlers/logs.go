package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/modaq/uploader/pkg/audit"
	"github.com/modaq/uploader/pkg/config"
	s3gw "github.com/modaq/uploader/pkg/storage/s3"
)

// LogsHandler exposes the audit journal: filtered entry queries, file
// listings, aggregate statistics, and on-demand shipping to S3.
type LogsHandler struct {
	audit  *audit.Log
	config *config.Store

	// Swapped out by tests.
	newShipper func(ctx context.Context, profile, region string) (audit.Shipper, error)
}

// NewLogsHandler creates a logs handler over the given journal.
func NewLogsHandler(log *audit.Log, cfg *config.Store) *LogsHandler {
	return &LogsHandler{
		audit:  log,
		config: cfg,
		newShipper: func(ctx context.Context, profile, region string) (audit.Shipper, error) {
			return s3gw.New(ctx, profile, region)
		},
	}
}

// Entries handles GET /api/logs/entries.
//
// Query parameters: date (YYYY-MM-DD), level, category, search, offset,
// limit (clamped to 1..1000, default 100).
func (h *LogsHandler) Entries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	result, err := h.audit.Query(audit.QueryOptions{
		Date:     q.Get("date"),
		Level:    q.Get("level"),
		Category: q.Get("category"),
		Search:   q.Get("search"),
		Offset:   offset,
		Limit:    limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  result.Entries,
		"total":    result.Total,
		"offset":   result.Offset,
		"limit":    result.Limit,
		"has_more": result.Offset+len(result.Entries) < result.Total,
	})
}

// Files handles GET /api/logs/files.
func (h *LogsHandler) Files(w http.ResponseWriter, r *http.Request) {
	files, err := h.audit.ListFiles()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// Stats handles GET /api/logs/stats.
func (h *LogsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.Stats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UploadStats handles GET /api/logs/upload-stats.
//
// Rolls the upload-summary CSVs into per-session and lifetime aggregates.
func (h *LogsHandler) UploadStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.audit.UploadStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Ship handles POST /api/logs/sync.
//
// Uploads every changed journal and summary file to the configured
// bucket. Transport failures are a 200 with success=false, matching the
// connection-test policy.
func (h *LogsHandler) Ship(w http.ResponseWriter, r *http.Request) {
	settings := h.config.Settings()
	if settings.S3Bucket == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "S3 bucket not configured",
		})
		return
	}

	h.audit.Info(audit.CategorySync, "log_sync_started", "Starting log sync to S3", nil)

	shipper, err := h.newShipper(r.Context(), settings.AWSProfile, settings.AWSRegion)
	if err != nil {
		h.audit.Error(audit.CategorySync, "log_sync_failed",
			fmt.Sprintf("Log sync failed: %v", err), map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	result, err := h.audit.Ship(r.Context(), shipper, settings.S3Bucket, "logs/")
	if err != nil {
		h.audit.Error(audit.CategorySync, "log_sync_failed",
			fmt.Sprintf("Log sync failed: %v", err), map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}
