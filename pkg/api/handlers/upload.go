package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/modaq/uploader/pkg/config"
	"github.com/modaq/uploader/pkg/events"
	"github.com/modaq/uploader/pkg/jobs"
)

// UploadHandler exposes the upload engine: analysis, transfer, folder
// scans and their progress streams.
type UploadHandler struct {
	engine *jobs.UploadEngine
	hub    *events.Hub
	config *config.Store
}

// NewUploadHandler creates an upload handler backed by the given engine.
func NewUploadHandler(engine *jobs.UploadEngine, hub *events.Hub, cfg *config.Store) *UploadHandler {
	return &UploadHandler{engine: engine, hub: hub, config: cfg}
}

// AnalyzeRequest is the request body for POST /api/upload/analyze.
type AnalyzeRequest struct {
	FilePaths  []string `json:"file_paths"`
	AutoUpload bool     `json:"auto_upload"`
	TempDir    string   `json:"temp_dir"`
}

// Analyze handles POST /api/upload/analyze.
//
// Creates a job for the given paths and analyzes it in the background.
// Returns 202 immediately; progress arrives on the job's SSE stream.
func (h *UploadHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.FilePaths) == 0 {
		respondError(w, http.StatusBadRequest, "No files provided")
		return
	}

	target := targetFor(h.config.Settings())
	job := h.engine.CreateJob(req.FilePaths, req.AutoUpload, req.TempDir)

	go func() {
		if h.engine.AnalyzeAndNotify(context.Background(), job.ID, target, true) {
			h.engine.Upload(context.Background(), job.ID, target, true)
		}
	}()

	snapshot := job.Dict()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      string(jobs.StatusAnalyzing),
		"total_files": snapshot["total_files"],
		"files":       snapshot["files"],
	})
}

// StartRequest is the optional request body for POST /api/upload/start.
type StartRequest struct {
	SkipDuplicates *bool `json:"skip_duplicates"`
}

// Start handles POST /api/upload/start/{job_id}.
func (h *UploadHandler) Start(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := h.engine.Job(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	var req StartRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	skipDuplicates := true
	if req.SkipDuplicates != nil {
		skipDuplicates = *req.SkipDuplicates
	}

	if status, _ := job.Dict()["status"].(string); status != string(jobs.StatusReady) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Job is not ready for upload (status: %s)", status))
		return
	}

	target := targetFor(h.config.Settings())
	go h.engine.Upload(context.Background(), jobID, target, skipDuplicates)

	writeJSON(w, http.StatusOK, map[string]any{"job_id": jobID, "status": "started"})
}

// Progress handles GET /api/upload/progress/{job_id} as an SSE stream.
func (h *UploadHandler) Progress(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, h.hub, h.engine.StreamSource(), chi.URLParam(r, "jobID"))
}

// Status handles GET /api/upload/status/{job_id}.
func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.engine.Job(chi.URLParam(r, "jobID"))
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Dict())
}

// Active handles GET /api/upload/active. Clients use it to restore state
// after a page refresh, so it returns compact snapshots.
func (h *UploadHandler) Active(w http.ResponseWriter, r *http.Request) {
	active := h.engine.ActiveJobs()
	snapshots := make([]map[string]any, len(active))
	for i, job := range active {
		snapshots[i] = job.ProgressDict()
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": snapshots})
}

// Cancel handles POST /api/upload/cancel/{job_id}.
func (h *UploadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !h.engine.Cancel(jobID) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	var snapshot map[string]any
	if job, ok := h.engine.Job(jobID); ok {
		snapshot = job.Dict()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"job_id":  jobID,
		"job":     snapshot,
	})
}

// ScanRequest is the request body for POST /api/upload/scan-folder.
type ScanRequest struct {
	FolderPath         string   `json:"folder_path"`
	ExcludedSubfolders []string `json:"excluded_subfolders"`
	ExcludedFiles      []string `json:"excluded_files"`
	CacheOnly          bool     `json:"cache_only"`
}

// ScanFolder handles POST /api/upload/scan-folder.
//
// Starts a folder scan that walks the tree subfolder by subfolder,
// pre-filtering each batch against the cache. Results stream over SSE.
func (h *UploadHandler) ScanFolder(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.FolderPath == "" {
		respondError(w, http.StatusBadRequest, "folder_path is required")
		return
	}

	info, err := os.Stat(req.FolderPath)
	if err != nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("Folder not found: %s", req.FolderPath))
		return
	}
	if !info.IsDir() {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Path is not a directory: %s", req.FolderPath))
		return
	}

	target := targetFor(h.config.Settings())
	job := h.engine.CreateScanJob(req.FolderPath, req.ExcludedSubfolders, req.ExcludedFiles)
	go h.engine.Scan(context.Background(), job.ID, target, req.CacheOnly)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"scan_id":     job.ID,
		"status":      "scanning",
		"folder_path": req.FolderPath,
	})
}

// ScanProgress handles GET /api/upload/scan-progress/{scan_id} as SSE.
func (h *UploadHandler) ScanProgress(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, h.hub, h.engine.ScanStreamSource(), chi.URLParam(r, "scanID"))
}

// ScanStatus handles GET /api/upload/scan-status/{scan_id}.
func (h *UploadHandler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.engine.ScanJobByID(chi.URLParam(r, "scanID"))
	if !ok {
		respondError(w, http.StatusNotFound, "Scan not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Dict())
}

// ScanCancel handles POST /api/upload/scan-cancel/{scan_id}.
func (h *UploadHandler) ScanCancel(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	if !h.engine.CancelScan(scanID) {
		respondError(w, http.StatusNotFound, "Scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scan_id": scanID})
}

// BulkAnalyzeRequest is the request body for POST /api/upload/bulk-analyze.
type BulkAnalyzeRequest struct {
	FilePaths      []string `json:"file_paths"`
	AutoUpload     bool     `json:"auto_upload"`
	PreFilterOnly  bool     `json:"pre_filter_only"`
	SkipDuplicates *bool    `json:"skip_duplicates"`
}

// BulkAnalyze handles POST /api/upload/bulk-analyze.
//
// Pre-filters the population against the cache (and the store for cache
// misses) before committing to per-file analysis. With auto_upload the
// job runs the combined pipeline, handing each parsed file to the upload
// pool as soon as its duplicate check clears.
func (h *UploadHandler) BulkAnalyze(w http.ResponseWriter, r *http.Request) {
	var req BulkAnalyzeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if len(req.FilePaths) == 0 {
		respondError(w, http.StatusBadRequest, "No files provided")
		return
	}
	skipDuplicates := true
	if req.SkipDuplicates != nil {
		skipDuplicates = *req.SkipDuplicates
	}

	target := targetFor(h.config.Settings())
	toAnalyze, stats := h.engine.PreFilter(r.Context(), req.FilePaths, target, false)

	if req.PreFilterOnly {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":          true,
			"pre_filter_stats": stats,
			"files_to_analyze": len(toAnalyze),
		})
		return
	}

	// Force re-upload analyzes the full population, duplicates included.
	jobPaths := toAnalyze
	if !skipDuplicates {
		jobPaths = req.FilePaths
	}

	job := h.engine.CreateJob(jobPaths, req.AutoUpload, "")
	job.PreFilterStats = stats

	if req.AutoUpload {
		go h.engine.Pipeline(context.Background(), job.ID, target, skipDuplicates, true)
	} else {
		go h.engine.AnalyzeAndNotify(context.Background(), job.ID, target, true)
	}

	snapshot := job.Dict()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":           job.ID,
		"status":           string(jobs.StatusAnalyzing),
		"total_files":      snapshot["total_files"],
		"pre_filter_stats": stats,
		"auto_upload":      req.AutoUpload,
		"files":            snapshot["files"],
	})
}
