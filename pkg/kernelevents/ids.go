// Package kernelevents provides the causality primitives and event envelope
// shared by every kernel subsystem: collision-resistant identifiers, a
// per-session monotonic sequence counter, and the canonical event name
// table threaded through hook dispatch, the coordinator, and the session
// lifecycle.
package kernelevents

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies a session for its entire lifetime.
type SessionID string

// TurnID identifies one execute() call, scoped to a single turn.
type TurnID string

// SpanID identifies a nested operation (provider call, tool call, planning
// step) within a turn.
type SpanID string

// NewSessionID returns a new collision-resistant session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// NewTurnID returns a new collision-resistant turn identifier.
func NewTurnID() TurnID {
	return TurnID(uuid.New().String())
}

// NewSpanID returns a new collision-resistant span identifier, for callers
// that need one outside of an active OTel span (see Tracer for the
// trace-integrated variant).
func NewSpanID() SpanID {
	return SpanID(uuid.New().String())
}

// Now returns the current time in UTC, the timestamp format every emitted
// event carries.
func Now() time.Time {
	return time.Now().UTC()
}

// Sequencer hands out a strictly increasing, never-reset sequence number
// per session. The zero value is ready to use and starts at 1.
type Sequencer struct {
	counter uint64
}

// Next returns the next sequence number. Safe for concurrent use.
func (s *Sequencer) Next() uint64 {
	return atomic.AddUint64(&s.counter, 1)
}
