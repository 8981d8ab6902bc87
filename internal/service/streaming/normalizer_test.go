package streaming

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"solace/internal/agent"
	"solace/internal/domain/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func partialChunk(t *testing.T, role, content string) agent.Chunk {
	t.Helper()
	return messagesChunk(t, agent.EventMessagesPartial, role, content)
}

func completeChunk(t *testing.T, role, content string) agent.Chunk {
	t.Helper()
	return messagesChunk(t, agent.EventMessagesComplete, role, content)
}

func messagesChunk(t *testing.T, event, role, content string) agent.Chunk {
	t.Helper()
	data, err := json.Marshal([]map[string]string{
		{"type": role, "content": content},
	})
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return agent.Chunk{Event: event, Data: data}
}

func updatesChunk(t *testing.T, payload map[string]any) agent.Chunk {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal updates chunk: %v", err)
	}
	return agent.Chunk{Event: agent.EventUpdates, Data: data}
}

// runNormalizer drives a feed of chunks through the normalizer and collects
// every emitted event.
func runNormalizer(t *testing.T, n *Normalizer, chunks []agent.Chunk) []models.StreamEvent {
	t.Helper()

	feed := make(chan agent.Chunk, len(chunks))
	for _, c := range chunks {
		feed <- c
	}
	close(feed)

	out := make(chan models.StreamEvent, len(chunks)+4)
	terminal := n.Run(context.Background(), feed, out)
	close(out)

	var events []models.StreamEvent
	for e := range out {
		events = append(events, e)
	}

	if len(events) == 0 {
		t.Fatal("normalizer emitted no events")
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Errorf("last event %q is not terminal", last.Type)
	}
	if terminal.Type != last.Type {
		t.Errorf("returned terminal %q does not match last emitted event %q", terminal.Type, last.Type)
	}
	return events
}

func eventTypes(events []models.StreamEvent) []models.StreamEventType {
	types := make([]models.StreamEventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestNormalizerHappyPath(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		partialChunk(t, "AIMessageChunk", "I"),
		partialChunk(t, "AIMessageChunk", "I hear"),
		partialChunk(t, "AIMessageChunk", "I hear you"),
		completeChunk(t, "ai", "I hear you"),
	}

	events := runNormalizer(t, n, chunks)

	want := []models.StreamEvent{
		models.TokenEvent("I"),
		models.TokenEvent("I hear"),
		models.TokenEvent("I hear you"),
		models.DoneEvent(""),
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(events), eventTypes(events), len(want))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestNormalizerDedupesRepeatedContent(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		partialChunk(t, "ai", "hello"),
		partialChunk(t, "ai", "hello"),
		partialChunk(t, "ai", "hello"),
		partialChunk(t, "ai", "hello there"),
		completeChunk(t, "ai", "hello there"),
	}

	events := runNormalizer(t, n, chunks)

	tokens := 0
	for _, e := range events {
		if e.Type == models.StreamEventToken {
			tokens++
		}
	}
	if tokens != 2 {
		t.Errorf("got %d token events, want 2 (duplicates suppressed)", tokens)
	}
}

func TestNormalizerCompleteWithUnseenContent(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	// The final snapshot carries text never seen in a partial; it must be
	// emitted as a token before done.
	chunks := []agent.Chunk{
		partialChunk(t, "ai", "partial text"),
		completeChunk(t, "ai", "partial text, and the full ending"),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 3 {
		t.Fatalf("got events %v, want [token token done]", eventTypes(events))
	}
	if events[1].Type != models.StreamEventToken || events[1].Content != "partial text, and the full ending" {
		t.Errorf("got %+v, want final token with complete content", events[1])
	}
	if events[2].Type != models.StreamEventDone {
		t.Errorf("last event = %q, want done", events[2].Type)
	}
}

func TestNormalizerFiltersSentinelTokens(t *testing.T) {
	n := NewNormalizer([]string{"box", "478", "none"}, testLogger())

	tests := []struct {
		name    string
		content string
		want    int // token events expected
	}{
		{name: "bare sentinel", content: "box", want: 0},
		{name: "sentinel with whitespace", content: "  box \n", want: 0},
		{name: "sentinel uppercased", content: "BOX", want: 0},
		{name: "numeric sentinel", content: "478", want: 0},
		{name: "sentinel inside a sentence passes", content: "try the box technique", want: 1},
		{name: "plain reply passes", content: "that sounds hard", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := []agent.Chunk{
				partialChunk(t, "ai", tt.content),
				{Event: agent.EventEnd, Data: json.RawMessage("{}")},
			}
			events := runNormalizer(t, n, chunks)

			tokens := 0
			for _, e := range events {
				if e.Type == models.StreamEventToken {
					tokens++
				}
			}
			if tokens != tt.want {
				t.Errorf("content %q: got %d token events, want %d", tt.content, tokens, tt.want)
			}
		})
	}
}

func TestNormalizerFiltersRoutingJSON(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		partialChunk(t, "ai", `{"detected_technique": "box", "confidence": 0.92}`),
		partialChunk(t, "ai", "Let's try a breathing exercise."),
		completeChunk(t, "ai", "Let's try a breathing exercise."),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 2 {
		t.Fatalf("got events %v, want [token done]", eventTypes(events))
	}
	if events[0].Content != "Let's try a breathing exercise." {
		t.Errorf("routing JSON leaked: first token = %q", events[0].Content)
	}
}

func TestNormalizerIgnoresNonAssistantMessages(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		partialChunk(t, "human", "user text echoed back"),
		partialChunk(t, "tool", "tool output"),
		partialChunk(t, "ai", "assistant reply"),
		completeChunk(t, "ai", "assistant reply"),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 2 {
		t.Fatalf("got events %v, want [token done]", eventTypes(events))
	}
	if events[0].Content != "assistant reply" {
		t.Errorf("first token = %q, want assistant content only", events[0].Content)
	}
}

func TestNormalizerInterruptShortCircuits(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	interrupt := updatesChunk(t, map[string]any{
		"__interrupt__": []map[string]any{
			{
				"value": map[string]any{
					"type":    models.InterruptBreathingConfirmation,
					"message": "Would you like to try box breathing?",
					"proposed": map[string]string{
						"id": "box", "label": "Box breathing",
					},
					"allowed_decisions": []string{
						models.DecisionStart,
						models.DecisionChangeTechnique,
						models.DecisionNotNow,
					},
				},
			},
		},
	})

	chunks := []agent.Chunk{
		partialChunk(t, "ai", "It sounds like you're anxious."),
		interrupt,
		// Anything after the interrupt must not be read.
		partialChunk(t, "ai", "leaked content"),
		completeChunk(t, "ai", "leaked content"),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 2 {
		t.Fatalf("got events %v, want [token interrupt]", eventTypes(events))
	}
	last := events[1]
	if last.Type != models.StreamEventInterrupt {
		t.Fatalf("last event = %q, want interrupt", last.Type)
	}
	if last.Interrupt == nil || last.Interrupt.Type != models.InterruptBreathingConfirmation {
		t.Errorf("interrupt payload = %+v, want breathing_confirmation", last.Interrupt)
	}
	if last.Interrupt.Proposed == nil || last.Interrupt.Proposed.ID != "box" {
		t.Errorf("proposed option = %+v, want box", last.Interrupt.Proposed)
	}
}

func TestNormalizerUpdatesWithoutInterruptAreSkipped(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		updatesChunk(t, map[string]any{"router": map[string]any{"next": "chat"}}),
		partialChunk(t, "ai", "hello"),
		completeChunk(t, "ai", "hello"),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 2 {
		t.Fatalf("got events %v, want [token done]", eventTypes(events))
	}
}

func TestNormalizerMalformedInterruptBecomesError(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	tests := []struct {
		name  string
		chunk agent.Chunk
	}{
		{
			name: "marker is not a list",
			chunk: agent.Chunk{
				Event: agent.EventUpdates,
				Data:  json.RawMessage(`{"__interrupt__": "oops"}`),
			},
		},
		{
			name: "payload missing type",
			chunk: updatesChunk(t, map[string]any{
				"__interrupt__": []map[string]any{
					{"value": map[string]any{"message": "no type field"}},
				},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := runNormalizer(t, n, []agent.Chunk{tt.chunk})
			last := events[len(events)-1]
			if last.Type != models.StreamEventError {
				t.Errorf("last event = %q, want error", last.Type)
			}
			if last.Error == "" {
				t.Error("error event has no message")
			}
		})
	}
}

func TestNormalizerErrorChunkBecomesErrorEvent(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		partialChunk(t, "ai", "partial before failure"),
		{Event: agent.EventError, Data: json.RawMessage(`{"message": "backend exploded"}`)},
	}

	events := runNormalizer(t, n, chunks)

	last := events[len(events)-1]
	if last.Type != models.StreamEventError {
		t.Fatalf("last event = %q, want error", last.Type)
	}
	if last.Error != "backend exploded" {
		t.Errorf("error message = %q, want backend exploded", last.Error)
	}
}

func TestNormalizerSynthesizesDoneOnFeedEnd(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	tests := []struct {
		name   string
		chunks []agent.Chunk
	}{
		{
			name: "feed closes after partials",
			chunks: []agent.Chunk{
				partialChunk(t, "ai", "unterminated turn"),
			},
		},
		{
			name:   "feed closes immediately",
			chunks: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := runNormalizer(t, n, tt.chunks)
			last := events[len(events)-1]
			if last.Type != models.StreamEventDone {
				t.Errorf("last event = %q, want synthesized done", last.Type)
			}
		})
	}
}

func TestNormalizerContextCancellation(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	feed := make(chan agent.Chunk)
	out := make(chan models.StreamEvent)

	terminal := n.Run(ctx, feed, out)
	if terminal.Type != "" {
		t.Errorf("cancelled run returned terminal %q, want zero event", terminal.Type)
	}
}

func TestNormalizerSkipsUnknownEvents(t *testing.T) {
	n := NewNormalizer(nil, testLogger())

	chunks := []agent.Chunk{
		{Event: "metadata", Data: json.RawMessage(`{"run_id": "abc"}`)},
		partialChunk(t, "ai", "hi"),
		completeChunk(t, "ai", "hi"),
	}

	events := runNormalizer(t, n, chunks)

	if len(events) != 2 {
		t.Fatalf("got events %v, want [token done]", eventTypes(events))
	}
}
