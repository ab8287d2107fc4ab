package cancel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestToken_InitialStateRunning(t *testing.T) {
	tok := New(nil)
	if tok.State() != StateRunning {
		t.Fatalf("State() = %v, want %v", tok.State(), StateRunning)
	}
	if tok.IsCancelled() {
		t.Error("expected fresh token to not be cancelled")
	}
}

func TestToken_RequestGraceful(t *testing.T) {
	tok := New(nil)
	if !tok.RequestGraceful() {
		t.Fatal("expected first RequestGraceful to return true")
	}
	if tok.State() != StateGraceful {
		t.Fatalf("State() = %v, want %v", tok.State(), StateGraceful)
	}
	if !tok.IsGraceful() || !tok.IsCancelled() {
		t.Error("expected IsGraceful and IsCancelled to be true")
	}
	if tok.RequestGraceful() {
		t.Error("expected second RequestGraceful to return false")
	}
}

func TestToken_RequestImmediate_FromRunning(t *testing.T) {
	tok := New(nil)
	if !tok.RequestImmediate() {
		t.Fatal("expected RequestImmediate to return true")
	}
	if !tok.IsImmediate() {
		t.Error("expected IsImmediate to be true")
	}
	if tok.RequestImmediate() {
		t.Error("expected second RequestImmediate to return false")
	}
}

func TestToken_RequestImmediate_AfterGraceful(t *testing.T) {
	tok := New(nil)
	tok.RequestGraceful()
	if !tok.RequestImmediate() {
		t.Fatal("expected graceful -> immediate to succeed")
	}
	if !tok.IsImmediate() {
		t.Error("expected IsImmediate to be true after escalation")
	}
}

func TestToken_CallbacksRunExactlyOnce(t *testing.T) {
	tok := New(nil)
	var calls int32
	tok.OnCancel(func() { atomic.AddInt32(&calls, 1) })
	tok.OnCancel(func() { atomic.AddInt32(&calls, 1) })

	tok.RequestGraceful()
	tok.RequestImmediate()

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected each callback to run exactly once (2 total), got %d", got)
	}
}

func TestToken_OnCancel_LateRegistrationRunsImmediately(t *testing.T) {
	tok := New(nil)
	tok.RequestImmediate()

	ran := false
	tok.OnCancel(func() { ran = true })

	if !ran {
		t.Error("expected a callback registered after cancellation to run immediately")
	}
}

func TestToken_PanickingCallbackDoesNotBlockOthers(t *testing.T) {
	tok := New(nil)
	var second bool
	tok.OnCancel(func() { panic("boom") })
	tok.OnCancel(func() { second = true })

	tok.RequestImmediate()

	if !second {
		t.Error("expected the second callback to run despite the first panicking")
	}
}

func TestToken_TrackAndCompleteTool(t *testing.T) {
	tok := New(nil)
	tok.TrackTool("t1", "read_file")
	tok.TrackTool("t2", "write_file")

	if got := len(tok.InFlightTools()); got != 2 {
		t.Fatalf("expected 2 in-flight tools, got %d", got)
	}

	tok.CompleteTool("t1")
	tools := tok.InFlightTools()
	if len(tools) != 1 || tools[0].ID != "t2" {
		t.Fatalf("expected only t2 to remain in-flight, got %+v", tools)
	}
}

func TestToken_Reset(t *testing.T) {
	tok := New(nil)
	tok.TrackTool("t1", "read_file")
	tok.RequestGraceful()

	tok.Reset()

	if tok.State() != StateRunning {
		t.Fatalf("State() after Reset = %v, want %v", tok.State(), StateRunning)
	}
	if len(tok.InFlightTools()) != 0 {
		t.Error("expected Reset to clear in-flight tools")
	}
}

func TestToken_Reset_DoesNotRearmCallbacks(t *testing.T) {
	tok := New(nil)
	var calls int32
	tok.OnCancel(func() { atomic.AddInt32(&calls, 1) })

	tok.RequestImmediate()
	tok.Reset()
	tok.RequestGraceful()
	tok.RequestImmediate()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected callback to have run exactly once across resets, got %d", got)
	}
}

func TestToken_ConcurrentRequestImmediate_SingleWinner(t *testing.T) {
	tok := New(nil)
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tok.RequestImmediate() {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one goroutine to win the transition, got %d", wins)
	}
}
