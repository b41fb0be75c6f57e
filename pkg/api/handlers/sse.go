package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/modaq/uploader/pkg/events"
)

// streamSSE follows a job over the hub and writes each envelope as one
// server-sent event. The response stays open until the job reaches a
// terminal state or the client disconnects, so the server must run with
// no write timeout on this route.
func streamSSE(w http.ResponseWriter, r *http.Request, hub *events.Hub, src events.Source, jobID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Stream returns the client's disconnect as ctx.Err(); nothing useful
	// can be written at that point.
	_ = hub.Stream(r.Context(), jobID, src, func(ev events.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
}
