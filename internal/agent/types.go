package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Raw feed event tags emitted by the orchestrator.
const (
	EventMessagesPartial  = "messages/partial"
	EventMessagesComplete = "messages/complete"
	EventUpdates          = "updates"
	EventError            = "error"
	EventEnd              = "end"
)

// interruptKey marks a paused computation inside an updates chunk.
const interruptKey = "__interrupt__"

// Chunk is one raw event from the orchestrator's incremental feed:
// an event tag plus an untyped data payload.
type Chunk struct {
	Event string
	Data  json.RawMessage
}

// RawMessage is the loosely-typed message shape inside messages/* chunks.
// The orchestrator tags roles under either "type" or "role" depending on the
// message class, and content is either a plain string or a list of typed
// fragments.
type RawMessage struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// IsAssistant reports whether the message comes from an assistant-equivalent
// role.
func (m RawMessage) IsAssistant() bool {
	switch m.Type {
	case "ai", "AIMessageChunk", "assistant":
		return true
	}
	switch m.Role {
	case "ai", "assistant":
		return true
	}
	return false
}

// contentFragment is one entry of a fragment-list content encoding.
// Only text-typed fragments contribute to the extracted text.
type contentFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// DecodeMessages decodes the message list carried by a messages/partial or
// messages/complete chunk.
func DecodeMessages(data json.RawMessage) ([]RawMessage, error) {
	var messages []RawMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}
	return messages, nil
}

// ExtractText normalizes the two content encodings into plain text: a JSON
// string is returned as-is, and a fragment list is reduced to the
// concatenation of its text-typed fragments.
func ExtractText(content json.RawMessage) (string, error) {
	if len(content) == 0 {
		return "", nil
	}

	var plain string
	if err := json.Unmarshal(content, &plain); err == nil {
		return plain, nil
	}

	var fragments []contentFragment
	if err := json.Unmarshal(content, &fragments); err != nil {
		return "", fmt.Errorf("decode content fragments: %w", err)
	}

	var b strings.Builder
	for _, f := range fragments {
		if f.Type == "text" {
			b.WriteString(f.Text)
		}
	}
	return b.String(), nil
}

// InterruptEnvelope wraps a single interrupt entry inside an updates chunk.
type InterruptEnvelope struct {
	Value json.RawMessage `json:"value"`
}

// DecodeInterrupts inspects an updates chunk for the interrupt marker.
// found is false when the chunk carries no interrupts (the normal case for
// graph updates); a present-but-malformed marker returns an error so the
// pause is surfaced instead of silently dropped.
func DecodeInterrupts(data json.RawMessage) ([]InterruptEnvelope, bool, error) {
	var update map[string]json.RawMessage
	if err := json.Unmarshal(data, &update); err != nil {
		// Not an object-shaped update; nothing to inspect
		return nil, false, nil
	}

	raw, ok := update[interruptKey]
	if !ok {
		return nil, false, nil
	}

	var interrupts []InterruptEnvelope
	if err := json.Unmarshal(raw, &interrupts); err != nil {
		return nil, true, fmt.Errorf("decode interrupt marker: %w", err)
	}
	if len(interrupts) == 0 {
		return nil, false, nil
	}
	return interrupts, true, nil
}

// ErrorData is the payload of an error chunk, either backend-reported or
// synthesized by the client when the feed fails mid-read.
type ErrorData struct {
	Message string `json:"message"`
}

// DecodeError extracts a human-readable message from an error chunk.
func DecodeError(data json.RawMessage) string {
	var ed ErrorData
	if err := json.Unmarshal(data, &ed); err == nil && ed.Message != "" {
		return ed.Message
	}
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil && plain != "" {
		return plain
	}
	return "stream error"
}

// newErrorChunk builds an error chunk for transport failures so readers see
// one uniform error shape regardless of where the failure originated.
func newErrorChunk(message string) Chunk {
	data, _ := json.Marshal(ErrorData{Message: message})
	return Chunk{Event: EventError, Data: data}
}
