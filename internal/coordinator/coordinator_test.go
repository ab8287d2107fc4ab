package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/microsoft/amplifier-core/internal/hooks"
	"github.com/microsoft/amplifier-core/internal/kernelerrors"
	"github.com/microsoft/amplifier-core/pkg/kernelevents"
	"github.com/microsoft/amplifier-core/pkg/moduleapi"
)

type stubModule struct {
	instance any
	cleanup  moduleapi.Cleanup
	err      error
}

func (m *stubModule) Mount(ctx context.Context, coordinator moduleapi.Coordinator, config map[string]any) (any, moduleapi.Cleanup, error) {
	return m.instance, m.cleanup, m.err
}

func newTestCoordinator() *Coordinator {
	return New(Options{
		SessionID:    kernelevents.NewSessionID(),
		Sequencer:    &kernelevents.Sequencer{},
		HookRegistry: hooks.New(nil),
	})
}

func TestCoordinator_MountAndGet_Singleton(t *testing.T) {
	c := newTestCoordinator()
	mod := &stubModule{instance: "orchestrator-instance"}

	got, err := c.Mount(context.Background(), PointOrchestrator, "", mod, nil)
	if err != nil {
		t.Fatalf("Mount() error: %v", err)
	}
	if got != "orchestrator-instance" {
		t.Fatalf("Mount() = %v", got)
	}

	fetched, err := c.Get(PointOrchestrator, "")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if fetched != "orchestrator-instance" {
		t.Fatalf("Get() = %v", fetched)
	}
}

func TestCoordinator_Mount_SingletonConflict(t *testing.T) {
	c := newTestCoordinator()
	mod := &stubModule{instance: "one"}

	if _, err := c.Mount(context.Background(), PointContext, "", mod, nil); err != nil {
		t.Fatalf("first Mount() error: %v", err)
	}
	_, err := c.Mount(context.Background(), PointContext, "", mod, nil)
	if !kernelerrors.Of(err, kernelerrors.KindMountConflict) {
		t.Fatalf("expected KindMountConflict, got %v", err)
	}
}

func TestCoordinator_Mount_NamedMultiMounts(t *testing.T) {
	c := newTestCoordinator()
	c.Mount(context.Background(), PointProviders, "anthropic", &stubModule{instance: "a"}, nil)
	c.Mount(context.Background(), PointProviders, "openai", &stubModule{instance: "b"}, nil)

	names := c.List(PointProviders)
	if len(names) != 2 || names[0] != "anthropic" || names[1] != "openai" {
		t.Fatalf("List() = %v, want insertion order [anthropic openai]", names)
	}

	got, err := c.Get(PointProviders, "openai")
	if err != nil || got != "b" {
		t.Fatalf("Get(openai) = %v, %v", got, err)
	}
}

func TestCoordinator_Mount_LoadFailure(t *testing.T) {
	c := newTestCoordinator()
	mod := &stubModule{err: errors.New("boom")}

	_, err := c.Mount(context.Background(), PointTools, "broken", mod, nil)
	if !kernelerrors.Of(err, kernelerrors.KindModuleLoadFailure) {
		t.Fatalf("expected KindModuleLoadFailure, got %v", err)
	}
}

func TestCoordinator_Get_NotFound(t *testing.T) {
	c := newTestCoordinator()
	_, err := c.Get(PointProviders, "missing")
	if !kernelerrors.Of(err, kernelerrors.KindMountNotFound) {
		t.Fatalf("expected KindMountNotFound, got %v", err)
	}
}

func TestCoordinator_Unmount_RunsCleanup(t *testing.T) {
	c := newTestCoordinator()
	var cleaned bool
	mod := &stubModule{instance: "x", cleanup: func(ctx context.Context) error {
		cleaned = true
		return nil
	}}
	c.Mount(context.Background(), PointTools, "t1", mod, nil)

	if err := c.Unmount(context.Background(), PointTools, "t1"); err != nil {
		t.Fatalf("Unmount() error: %v", err)
	}
	if !cleaned {
		t.Error("expected module cleanup to run on Unmount")
	}
	if _, err := c.Get(PointTools, "t1"); err == nil {
		t.Error("expected t1 to be gone after unmount")
	}
}

func TestCoordinator_Capabilities_LastWriterWins(t *testing.T) {
	c := newTestCoordinator()
	c.RegisterCapability("bus", "first")
	c.RegisterCapability("bus", "second")

	v, ok := c.GetCapability("bus")
	if !ok || v != "second" {
		t.Fatalf("GetCapability() = %v, %v, want second, true", v, ok)
	}

	if _, ok := c.GetCapability("missing"); ok {
		t.Error("expected missing capability to report ok=false")
	}
}

func TestCoordinator_Cleanup_ReverseOrderAndContainsFailures(t *testing.T) {
	c := newTestCoordinator()
	var order []int
	c.RegisterCleanup(func(ctx context.Context) error {
		order = append(order, 1)
		return errors.New("cleanup 1 failed")
	})
	c.RegisterCleanup(func(ctx context.Context) error {
		order = append(order, 2)
		return nil
	})

	c.Cleanup(context.Background())

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("cleanup order = %v, want [2 1]", order)
	}
}

func TestCoordinator_SessionIDAndParentID(t *testing.T) {
	parent := kernelevents.NewSessionID()
	c := New(Options{
		SessionID: kernelevents.NewSessionID(),
		ParentID:  &parent,
	})

	if c.SessionID() == "" {
		t.Error("expected non-empty SessionID")
	}
	got, ok := c.ParentID()
	if !ok || got != string(parent) {
		t.Fatalf("ParentID() = %v, %v", got, ok)
	}
}

func TestCoordinator_ParentID_AbsentWhenNil(t *testing.T) {
	c := newTestCoordinator()
	if _, ok := c.ParentID(); ok {
		t.Error("expected ParentID to report ok=false when no parent")
	}
}

func TestCoordinator_Emit_StampsSpanID(t *testing.T) {
	c := newTestCoordinator()

	var seen *kernelevents.Event
	c.HookRegistry().Register(kernelevents.EventToolPre, "observer", func(e *kernelevents.Event) (hooks.Result, error) {
		seen = e
		return hooks.Result{Action: hooks.ActionContinue}, nil
	}, hooks.DefaultPriority)

	c.Emit(kernelevents.EventToolPre, map[string]any{"tool": "grep"})

	if seen == nil {
		t.Fatal("expected the registered handler to observe the emitted event")
	}
	spanID, ok := seen.SpanID()
	if !ok || spanID == "" {
		t.Fatalf("expected Emit to stamp a non-empty span_id, got %q, ok=%v", spanID, ok)
	}
}
