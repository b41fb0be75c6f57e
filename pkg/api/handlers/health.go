package handlers

import (
	"net/http"
	"time"

	"github.com/modaq/uploader/internal/version"
)

// startTime anchors the uptime reported by the health endpoint.
var startTime = time.Now()

// Health handles GET /health - liveness probe.
//
// Always succeeds while the HTTP server is responsive; there is nothing
// else worth gating liveness on.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "modaq",
		"version": version.Version,
		"uptime":  time.Since(startTime).Truncate(time.Second).String(),
	})
}
