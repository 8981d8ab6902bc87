package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnsureThread(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/threads" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", testLogger())

	if err := client.EnsureThread(context.Background(), "session-jwt", "conv-1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}

	if gotBody["thread_id"] != "conv-1" {
		t.Errorf("thread_id = %v, want conv-1", gotBody["thread_id"])
	}
	if gotBody["if_exists"] != "do_nothing" {
		t.Errorf("if_exists = %v, want do_nothing", gotBody["if_exists"])
	}
	if gotAuth != "Bearer session-jwt" {
		t.Errorf("Authorization = %q, want the session token", gotAuth)
	}
}

func TestEnsureThreadFallsBackToServiceKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "service-key", testLogger())

	if err := client.EnsureThread(context.Background(), "", "conv-1"); err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q, want the service key fallback", gotAuth)
	}
}

func TestStreamRunDeliversChunks(t *testing.T) {
	var gotReq runRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/threads/conv-1/runs/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode run request: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: messages/partial\ndata: [{\"type\":\"ai\",\"content\":\"hi\"}]\n\n")
		io.WriteString(w, "event: end\ndata: {}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())

	feed, err := client.StreamRun(context.Background(), "jwt", "conv-1", RunInput{Content: "hello"})
	if err != nil {
		t.Fatalf("StreamRun: %v", err)
	}

	var chunks []Chunk
	for c := range feed {
		chunks = append(chunks, c)
	}

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Event != EventMessagesPartial || chunks[1].Event != EventEnd {
		t.Errorf("chunk events = %q, %q", chunks[0].Event, chunks[1].Event)
	}

	// Wire shape: input carries the user message, stream_mode asks for both
	// message tokens and graph updates.
	if gotReq.Input == nil || len(gotReq.Input.Messages) != 1 {
		t.Fatalf("run input = %+v, want one user message", gotReq.Input)
	}
	if gotReq.Input.Messages[0].Role != "user" || gotReq.Input.Messages[0].Content != "hello" {
		t.Errorf("run message = %+v", gotReq.Input.Messages[0])
	}
	if len(gotReq.StreamMode) != 2 || gotReq.StreamMode[0] != "messages" || gotReq.StreamMode[1] != "updates" {
		t.Errorf("stream_mode = %v, want [messages updates]", gotReq.StreamMode)
	}
	if gotReq.Command != nil {
		t.Error("message run carried a resume command")
	}
}

func TestResumeRunWireShape(t *testing.T) {
	var gotReq runRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode run request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "event: end\ndata: {}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())

	technique := "box"
	feed, err := client.ResumeRun(context.Background(), "jwt", "conv-1", ResumeCommand{
		Decision:    "change_technique",
		TechniqueID: &technique,
	})
	if err != nil {
		t.Fatalf("ResumeRun: %v", err)
	}
	for range feed {
	}

	if gotReq.Command == nil {
		t.Fatal("resume run carried no command")
	}
	if gotReq.Command.Resume.Decision != "change_technique" {
		t.Errorf("decision = %q", gotReq.Command.Resume.Decision)
	}
	if gotReq.Command.Resume.TechniqueID == nil || *gotReq.Command.Resume.TechniqueID != "box" {
		t.Errorf("technique_id = %v, want box", gotReq.Command.Resume.TechniqueID)
	}
	if gotReq.Input != nil {
		t.Error("resume run carried a message input")
	}
}

func TestStreamRunNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "thread is busy", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLogger())

	if _, err := client.StreamRun(context.Background(), "", "conv-1", RunInput{Content: "hi"}); err == nil {
		t.Fatal("StreamRun returned nil error on a 409 response")
	}
}
