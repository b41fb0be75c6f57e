package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/modaq/uploader/internal/logger"

	"github.com/modaq/uploader/pkg/config"
	"github.com/modaq/uploader/pkg/jobs"
)

// writeJSON writes a JSON response with the given status code.
//
// Encoding is done to a buffer first so an encoding failure can still
// produce an error response (before headers are sent).
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// respondError writes a plain {"error": msg} body with the given status.
func respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false after writing a 400 when decoding fails. An empty body is
// not an error; the target keeps its zero values.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// targetFor maps the live settings onto an engine target.
func targetFor(s config.Settings) jobs.Target {
	return jobs.Target{
		Profile: s.AWSProfile,
		Region:  s.AWSRegion,
		Bucket:  s.S3Bucket,
	}
}
