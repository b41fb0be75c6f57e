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

// DeleteHandler exposes the verified-delete workflow: scanning for
// uploaded recordings, running the verify-then-unlink job, and its
// progress stream.
type DeleteHandler struct {
	engine *jobs.DeleteEngine
	hub    *events.Hub
	config *config.Store
}

// NewDeleteHandler creates a delete handler backed by the given engine.
func NewDeleteHandler(engine *jobs.DeleteEngine, hub *events.Hub, cfg *config.Store) *DeleteHandler {
	return &DeleteHandler{engine: engine, hub: hub, config: cfg}
}

// DeleteScanRequest is the request body for POST /api/delete/scan.
type DeleteScanRequest struct {
	FolderPath         string   `json:"folder_path"`
	ExcludedSubfolders []string `json:"excluded_subfolders"`
	ExcludedFiles      []string `json:"excluded_files"`
}

// Scan handles POST /api/delete/scan.
//
// Cross-references local recordings with the upload cache and returns
// the files whose objects are known to exist. An empty result is still a
// 200; there is just nothing to delete.
func (h *DeleteHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req DeleteScanRequest
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

	settings := h.config.Settings()
	job, err := h.engine.ScanFolder(r.Context(), req.FolderPath, settings.S3Bucket,
		req.ExcludedSubfolders, req.ExcludedFiles)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	snapshot := job.Dict()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"job_id":      job.ID,
		"folder_path": req.FolderPath,
		"files":       snapshot["files"],
		"total_files": snapshot["total_files"],
		"total_size":  totalDeleteSize(snapshot),
	})
}

// totalDeleteSize sums file sizes out of a delete job snapshot.
func totalDeleteSize(snapshot map[string]any) int64 {
	files, _ := snapshot["files"].([]map[string]any)
	var total int64
	for _, f := range files {
		if size, ok := f["file_size"].(int64); ok {
			total += size
		}
	}
	return total
}

// Start handles POST /api/delete/start/{job_id}.
func (h *DeleteHandler) Start(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, ok := h.engine.Job(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	if status, _ := job.Dict()["status"].(string); status != jobs.DeleteJobPending {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Job already started (status: %s)", status))
		return
	}

	target := targetFor(h.config.Settings())
	go h.engine.Start(context.Background(), jobID, target)

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": jobID, "status": "started"})
}

// Progress handles GET /api/delete/progress/{job_id} as an SSE stream.
func (h *DeleteHandler) Progress(w http.ResponseWriter, r *http.Request) {
	streamSSE(w, r, h.hub, h.engine.StreamSource(), chi.URLParam(r, "jobID"))
}

// Status handles GET /api/delete/status/{job_id}.
func (h *DeleteHandler) Status(w http.ResponseWriter, r *http.Request) {
	job, ok := h.engine.Job(chi.URLParam(r, "jobID"))
	if !ok {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Dict())
}

// Cancel handles POST /api/delete/cancel/{job_id}.
func (h *DeleteHandler) Cancel(w http.ResponseWriter, r *http.Request) {
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
