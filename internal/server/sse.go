package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bangdoll/tubenotes/internal/progress"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteProgress forwards a pipeline event as a log or progress frame
func (s *SSEWriter) WriteProgress(ev progress.Event) {
	s.WriteEvent(string(ev.Type), ev) //nolint:errcheck
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteBusy signals that another job holds the single-flight guard. The
// stream has already started, so this is an event rather than a status code.
func (s *SSEWriter) WriteBusy() {
	s.WriteEvent("busy", map[string]string{ //nolint:errcheck
		"error": "another job is already running, try again later",
	})
}

// WriteResult sends the terminal result payload
func (s *SSEWriter) WriteResult(result any) {
	s.WriteEvent("result", result) //nolint:errcheck
}

// WriteDone sends a completion event
func (s *SSEWriter) WriteDone(jobID, status string) {
	s.WriteEvent("done", map[string]string{ //nolint:errcheck
		"job_id": jobID,
		"status": status,
	})
}
