package kernelevents

import (
	"encoding/json"
	"time"
)

// EventName identifies the canonical kernel lifecycle events. The core
// never interprets the string beyond routing hook dispatch and logging; it
// is opaque data to everything outside the hook registry.
type EventName string

// Canonical event names, per the kernel's external interface contract.
// Modules and hooks key off of these constants rather than inventing their
// own event strings.
const (
	EventSessionStart  EventName = "session:start"
	EventSessionEnd    EventName = "session:end"
	EventSessionError  EventName = "session:error"
	EventSessionResume EventName = "session:resume"
	EventSessionFork   EventName = "session:fork"

	EventTurnStart EventName = "turn:start"
	EventTurnEnd   EventName = "turn:end"
	EventTurnError EventName = "turn:error"

	EventPromptSubmit   EventName = "prompt:submit"
	EventPromptComplete EventName = "prompt:complete"

	EventProviderRequest  EventName = "provider:request"
	EventProviderResponse EventName = "provider:response"
	EventProviderError    EventName = "provider:error"

	EventToolPre   EventName = "tool:pre"
	EventToolPost  EventName = "tool:post"
	EventToolError EventName = "tool:error"

	EventContextPreCompact  EventName = "context:pre_compact"
	EventContextPostCompact EventName = "context:post_compact"

	EventHookContextInjection EventName = "hook:context_injection"

	EventCancelRequested EventName = "cancel:requested"
	EventCancelCompleted EventName = "cancel:completed"

	EventApprovalRequested EventName = "approval:requested"
	EventApprovalDecision  EventName = "approval:decision"
	EventApprovalTimeout   EventName = "approval:timeout"

	EventUserNotification EventName = "user:notification"

	EventOrchestratorComplete EventName = "orchestrator:complete"

	EventDecisionToolResolution    EventName = "decision:tool_resolution"
	EventDecisionAgentResolution   EventName = "decision:agent_resolution"
	EventDecisionContextResolution EventName = "decision:context_resolution"
)

// Well-known field keys inside Event.Fields. Typed accessors below read and
// write these so callers rarely need the raw strings.
const (
	FieldSessionID    = "session_id"
	FieldParentID     = "parent_id"
	FieldTurnID       = "turn_id"
	FieldSpanID       = "span_id"
	FieldParentSpanID = "parent_span_id"
)

// Event is the uniform envelope for every emitted kernel event: a fixed set
// of causality fields (name, timestamp, sequence) plus a free-form Fields
// bag for causality identifiers and event-specific data. The kernel itself
// only ever reads the causality identifiers out of Fields via the typed
// accessors; everything else is opaque payload for hook handlers and
// observers, per spec.md's "the core doesn't interpret their contents"
// design note for string-keyed maps.
type Event struct {
	Name EventName
	Ts   time.Time
	Seq  uint64

	Fields map[string]any
}

// NewEvent creates an event with its timestamp set and an empty Fields
// bag. Seq is assigned by the coordinator or session at emit time, not at
// construction.
func NewEvent(name EventName) *Event {
	return &Event{
		Name:   name,
		Ts:     Now(),
		Fields: make(map[string]any),
	}
}

// WithField sets a field and returns the event for chaining, mirroring the
// builder style of the teacher's hooks.Event.WithContext.
func (e *Event) WithField(key string, value any) *Event {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// WithSession seeds the session/parent causality fields.
func (e *Event) WithSession(session SessionID, parent *SessionID) *Event {
	e.WithField(FieldSessionID, session)
	if parent != nil {
		e.WithField(FieldParentID, *parent)
	}
	return e
}

// WithTurn seeds the turn causality field.
func (e *Event) WithTurn(turn TurnID) *Event {
	return e.WithField(FieldTurnID, turn)
}

// WithSpan seeds the span causality fields.
func (e *Event) WithSpan(span SpanID, parentSpan SpanID) *Event {
	e.WithField(FieldSpanID, span)
	if parentSpan != "" {
		e.WithField(FieldParentSpanID, parentSpan)
	}
	return e
}

// Clone returns a deep-enough copy: a new Event with a copied Fields map,
// so handlers reconciling a chain (action=modify) never mutate a payload
// another concurrent emit() call might be holding.
func (e *Event) Clone() *Event {
	cp := &Event{Name: e.Name, Ts: e.Ts, Seq: e.Seq}
	cp.Fields = make(map[string]any, len(e.Fields))
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	return cp
}

// SessionID returns the event's session_id field, if present.
func (e *Event) SessionID() (SessionID, bool) {
	v, ok := e.Fields[FieldSessionID].(SessionID)
	return v, ok
}

// ParentID returns the event's parent_id field, if present.
func (e *Event) ParentID() (SessionID, bool) {
	v, ok := e.Fields[FieldParentID].(SessionID)
	return v, ok
}

// TurnID returns the event's turn_id field, if present.
func (e *Event) TurnID() (TurnID, bool) {
	v, ok := e.Fields[FieldTurnID].(TurnID)
	return v, ok
}

// SpanID returns the event's span_id field, if present.
func (e *Event) SpanID() (SpanID, bool) {
	v, ok := e.Fields[FieldSpanID].(SpanID)
	return v, ok
}

// ParentSpanID returns the event's parent_span_id field, if present.
func (e *Event) ParentSpanID() (SpanID, bool) {
	v, ok := e.Fields[FieldParentSpanID].(SpanID)
	return v, ok
}

// MarshalJSON flattens the envelope: event/ts/seq alongside every Fields
// entry, so the wire shape matches spec.md's "default event envelope"
// description of a single flat payload rather than a nested Fields object.
func (e *Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Fields)+3)
	for k, v := range e.Fields {
		flat[k] = v
	}
	flat["event"] = e.Name
	flat["ts"] = e.Ts
	flat["seq"] = e.Seq
	return json.Marshal(flat)
}
