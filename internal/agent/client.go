package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Client talks to the remote conversation orchestrator. One constructed
// instance owns one authenticated connection configuration; it is not
// designed for concurrent turns on the same thread (the caller serializes
// turns per conversation).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an orchestrator client. apiKey is the service-level
// credential used when a call carries no session token.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			// No overall timeout: streams are open-ended. Connection
			// establishment is bounded by the request context instead.
			Timeout: 0,
		},
		logger: logger,
	}
}

// RunInput is the user-message input for a new streaming run.
type RunInput struct {
	Content string
}

// ResumeCommand continues a paused run with a user decision instead of a new
// user message.
type ResumeCommand struct {
	Decision    string  `json:"decision"`
	TechniqueID *string `json:"technique_id,omitempty"`
}

// runRequest is the wire shape of a streaming run request. Both message runs
// and resume runs target the same endpoint; exactly one of Input/Command is
// set.
type runRequest struct {
	Input      *runInputBody `json:"input,omitempty"`
	Command    *resumeBody   `json:"command,omitempty"`
	StreamMode []string      `json:"stream_mode"`
}

type runInputBody struct {
	Messages []runMessage `json:"messages"`
}

type runMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type resumeBody struct {
	Resume ResumeCommand `json:"resume"`
}

// streamModes requests both token-level message events and general graph
// updates; the updates mode is what makes interrupts observable.
var streamModes = []string{"messages", "updates"}

// EnsureThread creates the remote thread for a conversation if it does not
// exist yet. The thread id equals the conversation id.
func (c *Client) EnsureThread(ctx context.Context, token, threadID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"thread_id": threadID,
		"if_exists": "do_nothing",
	})
	if err != nil {
		return fmt.Errorf("marshal thread request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/threads", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build thread request: %w", err)
	}
	c.setHeaders(req, token, false)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("create thread: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("create thread: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// StreamRun opens a streaming run for a new user message on the thread.
// The returned channel carries raw chunks until the feed ends; transport
// failures mid-read surface as a final error chunk, never as a panic or a
// stuck channel.
func (c *Client) StreamRun(ctx context.Context, token, threadID string, input RunInput) (<-chan Chunk, error) {
	reqBody := runRequest{
		Input: &runInputBody{
			Messages: []runMessage{{Role: "user", Content: input.Content}},
		},
		StreamMode: streamModes,
	}
	return c.stream(ctx, token, threadID, &reqBody)
}

// ResumeRun reopens the thread's paused run, sending the user's decision as a
// resumption command rather than a new message.
func (c *Client) ResumeRun(ctx context.Context, token, threadID string, cmd ResumeCommand) (<-chan Chunk, error) {
	reqBody := runRequest{
		Command:    &resumeBody{Resume: cmd},
		StreamMode: streamModes,
	}
	return c.stream(ctx, token, threadID, &reqBody)
}

func (c *Client) stream(ctx context.Context, token, threadID string, reqBody *runRequest) (<-chan Chunk, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/runs/stream", c.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	c.setHeaders(req, token, true)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open run stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("open run stream: status %d: %s", resp.StatusCode, string(detail))
	}

	c.logger.Debug("run stream opened",
		"thread_id", threadID,
		"resume", reqBody.Command != nil,
		"connect_ms", time.Since(start).Milliseconds(),
	)

	chunks := make(chan Chunk, 16) // Buffered to decouple read loop from consumer

	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		if err := readSSE(ctx, resp.Body, chunks); err != nil {
			c.logger.Warn("run stream read failed",
				"thread_id", threadID,
				"error", err,
			)
			select {
			case chunks <- newErrorChunk(err.Error()):
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func (c *Client) setHeaders(req *http.Request, token string, streaming bool) {
	req.Header.Set("Content-Type", "application/json")
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	}
	// Bearer credential is attached per connection: the caller's session
	// token when present, the service key otherwise.
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
