package kernelevents

import "testing"

func TestEvent_WithSessionAndTurn(t *testing.T) {
	sid := NewSessionID()
	parent := NewSessionID()

	e := NewEvent(EventTurnStart).WithSession(sid, &parent).WithTurn(NewTurnID())

	got, ok := e.SessionID()
	if !ok || got != sid {
		t.Fatalf("SessionID() = %v, %v; want %v, true", got, ok, sid)
	}

	gotParent, ok := e.ParentID()
	if !ok || gotParent != parent {
		t.Fatalf("ParentID() = %v, %v; want %v, true", gotParent, ok, parent)
	}

	if _, ok := e.TurnID(); !ok {
		t.Error("expected TurnID to be set")
	}
}

func TestEvent_NoParentOmitted(t *testing.T) {
	e := NewEvent(EventSessionStart).WithSession(NewSessionID(), nil)
	if _, ok := e.ParentID(); ok {
		t.Error("expected ParentID to be absent when no parent supplied")
	}
}

func TestEvent_Clone_Independent(t *testing.T) {
	e := NewEvent(EventToolPre).WithField("tool", "read_file")
	clone := e.Clone()
	clone.WithField("tool", "write_file")

	if got := e.Fields["tool"]; got != "read_file" {
		t.Errorf("original event mutated by clone: got %v", got)
	}
	if got := clone.Fields["tool"]; got != "write_file" {
		t.Errorf("clone did not take the new field: got %v", got)
	}
}

func TestEvent_MarshalJSON(t *testing.T) {
	e := NewEvent(EventSessionStart).WithSession(NewSessionID(), nil)
	e.Seq = 7

	data, err := e.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty JSON output")
	}
}
