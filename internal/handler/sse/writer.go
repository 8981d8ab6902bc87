package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"solace/internal/domain/models"
)

// Writer serializes canonical stream events onto an SSE connection.
// Wire format per event:
//
//	event: token
//	data: {"type":"token","content":"..."}
type Writer struct {
	mu      sync.Mutex // keepalive ticks write concurrently with events
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares the response for SSE and returns a writer for it.
// Fails when the underlying connection cannot flush incrementally.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent writes one stream event and flushes it to the client.
func (s *Writer) WriteEvent(event models.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	s.flusher.Flush()
	return nil
}

// WriteKeepAlive writes an SSE comment (: keepalive\n\n) and flushes.
// Returns an error if the connection is closed or the write fails.
func (s *Writer) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// SSE spec: lines starting with : are comments (ignored by client)
	if _, err := fmt.Fprintf(s.w, ": keepalive\n\n"); err != nil {
		return fmt.Errorf("write keepalive failed: %w", err)
	}

	s.flusher.Flush()

	// Health check: attempt zero-byte write to detect closed connections
	if _, err := s.w.Write([]byte{}); err != nil {
		return fmt.Errorf("connection closed: %w", err)
	}

	return nil
}
