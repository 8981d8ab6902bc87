package models

import "fmt"

// StreamEventType discriminates the canonical stream event union.
type StreamEventType string

// Canonical stream event types. A turn yields exactly one of
// done/error/interrupt as its last event; token may repeat before it.
const (
	StreamEventStart     StreamEventType = "start"
	StreamEventToken     StreamEventType = "token"
	StreamEventDone      StreamEventType = "done"
	StreamEventError     StreamEventType = "error"
	StreamEventInterrupt StreamEventType = "interrupt"
)

// StreamEvent is one event of the normalized turn stream.
// Content carries the cumulative assistant text so far (not a delta).
type StreamEvent struct {
	Type      StreamEventType   `json:"type"`
	Content   string            `json:"content,omitempty"`
	MessageID string            `json:"message_id,omitempty"`
	Error     string            `json:"error,omitempty"`
	Interrupt *InterruptPayload `json:"interrupt,omitempty"`
}

// Terminal reports whether the event ends the turn's stream.
// An interrupt is terminal for the stream but not for the turn: the turn
// stays parked server-side until a resume decision arrives.
func (e StreamEvent) Terminal() bool {
	switch e.Type {
	case StreamEventDone, StreamEventError, StreamEventInterrupt:
		return true
	}
	return false
}

// StartEvent signals the beginning of a turn, before any network activity.
func StartEvent() StreamEvent {
	return StreamEvent{Type: StreamEventStart}
}

// TokenEvent carries the cumulative assistant text observed so far.
func TokenEvent(content string) StreamEvent {
	return StreamEvent{Type: StreamEventToken, Content: content}
}

// DoneEvent signals successful turn completion.
func DoneEvent(messageID string) StreamEvent {
	return StreamEvent{Type: StreamEventDone, MessageID: messageID}
}

// ErrorEvent wraps a failure as a terminal stream event.
func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: StreamEventError, Error: message}
}

// InterruptEvent signals a paused computation awaiting a user decision.
func InterruptEvent(payload *InterruptPayload) StreamEvent {
	return StreamEvent{Type: StreamEventInterrupt, Interrupt: payload}
}

// Interrupt payload types surfaced by the backend.
const (
	InterruptBreathingConfirmation  = "breathing_confirmation"
	InterruptVoiceSelection         = "voice_selection"
	InterruptJournalingConfirmation = "journaling_confirmation"
)

// Resume decisions the backend understands for confirmation interrupts.
const (
	DecisionStart           = "start"
	DecisionChangeTechnique = "change_technique"
	DecisionNotNow          = "not_now"
)

// InterruptOption is one selectable technique/voice inside a confirmation.
type InterruptOption struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// InterruptPayload is the structured confirmation the backend emits when it
// pauses a turn. The engine routes it through unchanged; technique semantics
// belong to the backend and the UI.
type InterruptPayload struct {
	Type             string            `json:"type"`
	Message          string            `json:"message,omitempty"`
	Proposed         *InterruptOption  `json:"proposed,omitempty"`
	Alternatives     []InterruptOption `json:"alternatives,omitempty"`
	AllowedDecisions []string          `json:"allowed_decisions,omitempty"`
}

// Validate checks the minimal shape the engine requires to route the payload.
// A payload failing this check surfaces as an error event, not a silent drop:
// the user is waiting on the pause.
func (p *InterruptPayload) Validate() error {
	if p == nil {
		return fmt.Errorf("interrupt payload is empty")
	}
	if p.Type == "" {
		return fmt.Errorf("interrupt payload missing type")
	}
	return nil
}
