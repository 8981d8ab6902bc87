package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// maxSSELineBytes bounds a single feed line; message lists with embedded
// content can run long.
const maxSSELineBytes = 1 << 20

// readSSE reads a text/event-stream body and forwards each complete event as
// a Chunk. It returns nil on a clean end of stream and an error on transport
// failure; the caller converts errors into an error chunk.
//
// Wire format per event:
//
//	event: messages/partial
//	data: [...]
//	<blank line dispatches the event>
func readSSE(ctx context.Context, body io.Reader, chunks chan<- Chunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxSSELineBytes)

	var event string
	var data strings.Builder

	dispatch := func() bool {
		if event == "" && data.Len() == 0 {
			return true
		}
		chunk := Chunk{Event: event, Data: []byte(data.String())}
		event = ""
		data.Reset()

		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if !dispatch() {
				return ctx.Err()
			}
		case strings.HasPrefix(line, ":"):
			// Comment (keepalive), ignored
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			// Multi-line data fields concatenate with newlines per the SSE spec
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}

	// Flush a final event the server didn't terminate with a blank line
	if !dispatch() {
		return ctx.Err()
	}
	return nil
}
