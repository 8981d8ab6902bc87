package streaming

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"solace/internal/agent"
	"solace/internal/domain/models"
)

// Structured-routing payloads leak from the backend's intent graph as
// assistant content; both keys appearing in one message marks it as routing
// output, never user-facing text.
const (
	routingMarkerKey     = `"detected_technique"`
	routingConfidenceKey = `"confidence"`
)

// Normalizer converts the orchestrator's heterogeneous chunk feed into the
// canonical token/done/error/interrupt sequence. One Normalizer is reusable
// across turns; per-turn accumulator state lives inside Run.
type Normalizer struct {
	sentinels map[string]struct{}
	logger    *slog.Logger
}

// NewNormalizer creates a normalizer. sentinels are the backend's internal
// routing tokens (matched case-insensitively against trimmed content).
func NewNormalizer(sentinels []string, logger *slog.Logger) *Normalizer {
	set := make(map[string]struct{}, len(sentinels))
	for _, s := range sentinels {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	return &Normalizer{
		sentinels: set,
		logger:    logger,
	}
}

// Run consumes the raw feed and emits token events plus exactly one terminal
// event on out. It returns the terminal event once emitted and stops reading
// the feed immediately afterwards (interrupts short-circuit the turn). The
// zero StreamEvent is returned only when ctx ends before a terminal was
// reached; the caller treats that as abandonment, not completion.
//
// The start event is the session's responsibility: it must reach the caller
// before any network activity, which has already happened by the time a feed
// exists.
func (n *Normalizer) Run(ctx context.Context, feed <-chan agent.Chunk, out chan<- models.StreamEvent) models.StreamEvent {
	lastContent := ""

	emit := func(event models.StreamEvent) bool {
		select {
		case out <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		var chunk agent.Chunk
		var open bool
		select {
		case chunk, open = <-feed:
		case <-ctx.Done():
			return models.StreamEvent{}
		}
		if !open {
			// Feed ended without an explicit terminal; synthesize done so no
			// turn ever hangs silently.
			done := models.DoneEvent("")
			if !emit(done) {
				return models.StreamEvent{}
			}
			return done
		}

		switch chunk.Event {
		case agent.EventMessagesPartial:
			content, ok := n.extract(chunk.Data)
			if !ok || content == lastContent {
				continue
			}
			lastContent = content
			if !emit(models.TokenEvent(content)) {
				return models.StreamEvent{}
			}

		case agent.EventMessagesComplete:
			if content, ok := n.extract(chunk.Data); ok && content != lastContent {
				lastContent = content
				if !emit(models.TokenEvent(content)) {
					return models.StreamEvent{}
				}
			}
			done := models.DoneEvent("")
			if !emit(done) {
				return models.StreamEvent{}
			}
			return done

		case agent.EventUpdates:
			interrupts, found, err := agent.DecodeInterrupts(chunk.Data)
			if err != nil {
				// A malformed pause must surface; the user is waiting on it
				errEvent := models.ErrorEvent(err.Error())
				if !emit(errEvent) {
					return models.StreamEvent{}
				}
				return errEvent
			}
			if !found {
				continue
			}

			var payload models.InterruptPayload
			if err := json.Unmarshal(interrupts[0].Value, &payload); err != nil {
				errEvent := models.ErrorEvent("malformed interrupt payload: " + err.Error())
				if !emit(errEvent) {
					return models.StreamEvent{}
				}
				return errEvent
			}
			if err := payload.Validate(); err != nil {
				errEvent := models.ErrorEvent(err.Error())
				if !emit(errEvent) {
					return models.StreamEvent{}
				}
				return errEvent
			}

			event := models.InterruptEvent(&payload)
			if !emit(event) {
				return models.StreamEvent{}
			}
			// Turn-ending short-circuit: no further chunks are read
			return event

		case agent.EventError:
			errEvent := models.ErrorEvent(agent.DecodeError(chunk.Data))
			if !emit(errEvent) {
				return models.StreamEvent{}
			}
			return errEvent

		case agent.EventEnd:
			done := models.DoneEvent("")
			if !emit(done) {
				return models.StreamEvent{}
			}
			return done

		default:
			// Unknown event kinds are backend noise; skip the chunk
			n.logger.Debug("skipping unknown feed event", "event", chunk.Event)
		}
	}
}

// extract pulls user-facing assistant text from a messages/* chunk.
// ok is false when the chunk should be ignored: undecodable shape, empty
// message list, non-assistant role, empty text, or filtered routing content.
func (n *Normalizer) extract(data json.RawMessage) (string, bool) {
	messages, err := agent.DecodeMessages(data)
	if err != nil || len(messages) == 0 {
		return "", false
	}

	last := messages[len(messages)-1]
	if !last.IsAssistant() {
		return "", false
	}

	text, err := agent.ExtractText(last.Content)
	if err != nil || text == "" {
		return "", false
	}

	if n.filtered(text) {
		return "", false
	}
	return text, true
}

// filtered reports whether content is internal routing output: a bare
// sentinel token or a structured-routing JSON object.
func (n *Normalizer) filtered(content string) bool {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if _, ok := n.sentinels[normalized]; ok {
		return true
	}
	return strings.Contains(content, routingMarkerKey) && strings.Contains(content, routingConfidenceKey)
}
