package router

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/juniorbasecompany/turna/domain"
)

// streamJob serves the job status stream over SSE. One event per observed
// transition; the connection closes after the terminal event or at the
// streaming ceiling.
func (h *handlers) streamJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		h.writeError(w, domain.Forbidden("access denied"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, domain.Internal("streaming not supported by server"))
		return
	}

	events, err := h.Engine.StreamStatus(r.Context(), caller, chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		if ev.Timeout {
			fmt.Fprintf(w, "event: timeout\ndata: {\"error\":\"timed out waiting for job\"}\n\n")
			flusher.Flush()
			return
		}
		data, err := json.Marshal(map[string]any{"status": ev.Status, "result": ev.Result})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", data)
		flusher.Flush()
	}
}
