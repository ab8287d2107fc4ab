package coordinator

import (
	"context"
	"errors"
	"testing"
)

type fakeApproval struct {
	result string
	err    error
	calls  int
}

func (f *fakeApproval) RequestApproval(ctx context.Context, prompt string, options []string, timeoutSec float64, defaultOption string) (string, error) {
	f.calls++
	return f.result, f.err
}

type fakeDisplay struct {
	shown []string
}

func (f *fakeDisplay) ShowMessage(ctx context.Context, text, level, source string) error {
	f.shown = append(f.shown, text)
	return nil
}

func newApprovalTestCoordinator(approval *fakeApproval, display *fakeDisplay) *Coordinator {
	c := newTestCoordinator()
	c.approval = approval
	c.display = display
	return c
}

func TestCoordinator_RequestApproval_Allowed(t *testing.T) {
	fa := &fakeApproval{result: "allow_once"}
	c := newApprovalTestCoordinator(fa, nil)

	decision, err := c.RequestApproval(context.Background(), "audit", "run rm -rf?", []string{"allow_once", "allow_always", "deny"}, 5, "deny")
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	if decision != "allow_once" {
		t.Fatalf("decision = %q, want allow_once", decision)
	}
	if fa.calls != 1 {
		t.Fatalf("expected exactly one call to the approval system, got %d", fa.calls)
	}
}

func TestCoordinator_RequestApproval_InvalidOptionTreatedAsDeny(t *testing.T) {
	fa := &fakeApproval{result: "not-an-option"}
	c := newApprovalTestCoordinator(fa, nil)

	decision, err := c.RequestApproval(context.Background(), "audit", "prompt", []string{"allow_once", "deny"}, 5, "deny")
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	if decision != "deny" {
		t.Fatalf("decision = %q, want deny", decision)
	}
}

func TestCoordinator_RequestApproval_TimeoutUsesDefault(t *testing.T) {
	fa := &fakeApproval{err: errors.New("timed out")}
	c := newApprovalTestCoordinator(fa, nil)

	decision, err := c.RequestApproval(context.Background(), "audit", "prompt", []string{"allow_once", "deny"}, 1, "deny")
	if err != nil {
		t.Fatalf("RequestApproval() error: %v", err)
	}
	if decision != "deny" {
		t.Fatalf("decision = %q, want default deny", decision)
	}
}

func TestCoordinator_RequestApproval_AllowForeverIsCached(t *testing.T) {
	fa := &fakeApproval{result: AllowForeverOption}
	c := newApprovalTestCoordinator(fa, nil)

	options := []string{"allow_once", AllowForeverOption, "deny"}
	first, _ := c.RequestApproval(context.Background(), "audit", "prompt", options, 5, "deny")
	second, _ := c.RequestApproval(context.Background(), "audit", "prompt", options, 5, "deny")

	if first != AllowForeverOption || second != AllowForeverOption {
		t.Fatalf("expected both decisions to be %q, got %q and %q", AllowForeverOption, first, second)
	}
	if fa.calls != 1 {
		t.Fatalf("expected the approval system to be called only once due to caching, got %d calls", fa.calls)
	}
}

func TestCoordinator_ForwardUserMessage_CallsDisplayAndDoesNotPanicWithoutOne(t *testing.T) {
	fd := &fakeDisplay{}
	c := newApprovalTestCoordinator(nil, fd)

	c.ForwardUserMessage(context.Background(), "audit", "heads up", "warning")
	if len(fd.shown) != 1 || fd.shown[0] != "heads up" {
		t.Fatalf("expected display to show the message, got %v", fd.shown)
	}

	c2 := newTestCoordinator()
	c2.ForwardUserMessage(context.Background(), "audit", "no display mounted", "info")
}
