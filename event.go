package conclave

import "encoding/json"

// EventType identifies an event in the deliberation stream.
//
// The event stream is the engine's sole public output: executors, agent
// loops, and the synthesizer produce events; presenters and tests consume
// them. Consumers must be total over this set; new variants are only ever
// added, never repurposed.
type EventType string

const (
	// EventRoundStart opens a round. Carries RoundNumber and RoundType.
	EventRoundStart EventType = "round-start"
	// EventRoundComplete closes a round. Carries the RoundRecord.
	EventRoundComplete EventType = "round-complete"
	// EventModelStart signals a participant's request is being issued.
	EventModelStart EventType = "model-start"
	// EventModelComplete carries one participant's finished Response.
	EventModelComplete EventType = "model-complete"
	// EventModelError carries a participant-level failure. A participant
	// emits at most one of model-complete/model-error per round.
	EventModelError EventType = "model-error"
	// EventToken carries an incremental text chunk (sequential streaming and
	// the synthesizer).
	EventToken EventType = "token"
	// EventToolCall signals a participant invoked a tool.
	EventToolCall EventType = "tool-call"
	// EventToolResult carries the tool handler's output.
	EventToolResult EventType = "tool-result"
	// EventThought carries a reasoning block surfaced by the ReAct loop.
	EventThought EventType = "thought"
	// EventAction carries the action a ReAct participant chose.
	EventAction EventType = "action"
	// EventObservation carries the observation fed back to a ReAct participant.
	EventObservation EventType = "observation"
	// EventReflection carries the chairman's pre-synthesis analysis.
	EventReflection EventType = "reflection"
	// EventSynthesis carries the final synthesized answer.
	EventSynthesis EventType = "synthesis"
	// EventDebateComplete carries all RoundRecords of a finished debate.
	EventDebateComplete EventType = "debate-complete"
	// EventError is a fatal, run-level failure.
	EventError EventType = "error"
)

// Event is one tagged record in the deliberation stream. Which fields are
// populated depends on Type; unused fields are zero.
type Event struct {
	Type EventType `json:"type"`

	// Round context (round-start, round-complete).
	RoundNumber int       `json:"round_number,omitempty"`
	RoundType   RoundType `json:"round_type,omitempty"`

	// Model is the participant id. Empty on run-level events and on
	// synthesizer tokens, where the speaker is implied.
	Model string `json:"model,omitempty"`

	// Name is the tool or action name (tool-call, tool-result, action).
	Name string `json:"name,omitempty"`

	// Content carries the event text: token chunk, thought, observation,
	// tool result, reflection, synthesis, action argument, or error reason.
	Content string `json:"content,omitempty"`

	// Args carries tool call arguments (tool-call only).
	Args json.RawMessage `json:"args,omitempty"`

	// Response is set on model-complete and synthesis.
	Response *Response `json:"response,omitempty"`

	// Record is set on round-complete.
	Record *RoundRecord `json:"record,omitempty"`

	// Rounds is set on debate-complete.
	Rounds []RoundRecord `json:"rounds,omitempty"`
}

// EmitFunc delivers an event to the run's consumer. It returns false when the
// consumer is gone (context cancelled); producers stop emitting once it does.
// The function must be safe for concurrent use: the batch executor calls it
// from per-participant goroutines.
type EmitFunc func(Event) bool
