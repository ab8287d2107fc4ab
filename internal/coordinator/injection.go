package coordinator

import (
	"context"

	"github.com/microsoft/amplifier-core/internal/hooks"
	"github.com/microsoft/amplifier-core/internal/kernelerrors"
	"github.com/microsoft/amplifier-core/pkg/kernelevents"
	"github.com/microsoft/amplifier-core/pkg/moduleapi"
)

// ResetTurn zeroes the per-turn injection byte counter. Called by
// Session.execute at the start of every turn.
func (c *Coordinator) ResetTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turnBytes = 0
}

// ProcessInjections applies every accumulated hook context injection
// against the mounted context module, per spec.md §4.4: validate size,
// add_message, increment the turn budget, emit hook:context_injection.
// Injections exceeding the hard per-injection limit are dropped (logged,
// KindInjectionTooLarge); injections that push the running turn total past
// the soft budget are still applied, only logged as a warning.
func (c *Coordinator) ProcessInjections(ctx context.Context, event kernelevents.EventName, injections []hooks.Injection) {
	if len(injections) == 0 {
		return
	}

	ctxModule, err := c.Get(PointContext, "")
	if err != nil {
		c.logger.Warn("cannot process injections: no context mounted", "error", err)
		return
	}
	contextAPI, ok := ctxModule.(moduleapi.Context)
	if !ok {
		c.logger.Warn("mounted context does not implement moduleapi.Context")
		return
	}

	for _, inj := range injections {
		size := len(inj.Text)

		c.mu.Lock()
		if size > c.hardInjectionLimit {
			c.mu.Unlock()
			c.logger.Warn("context injection dropped: exceeds hard limit",
				"hook", inj.HookName, "size", size, "limit", c.hardInjectionLimit,
				"kind", kernelerrors.KindInjectionTooLarge)
			c.Emit(kernelevents.EventHookContextInjection, map[string]any{
				"hook_name": inj.HookName,
				"role":      string(inj.Role),
				"size":      size,
				"event":     string(event),
				"dropped":   true,
				"reason":    string(kernelerrors.KindInjectionTooLarge),
			})
			continue
		}
		c.mu.Unlock()

		metadata := map[string]any{
			"source":    "hook",
			"hook_name": inj.HookName,
			"event":     string(event),
			"timestamp": kernelevents.Now(),
		}
		if err := contextAPI.AddMessage(ctx, string(inj.Role), inj.Text, metadata); err != nil {
			c.logger.Warn("context injection add_message failed", "hook", inj.HookName, "error", err)
			continue
		}

		c.mu.Lock()
		c.turnBytes += size
		turnBytes := c.turnBytes
		overBudget := turnBytes > c.softTurnBudget
		c.mu.Unlock()

		if overBudget {
			c.logger.Warn("context injection exceeds soft per-turn budget",
				"hook", inj.HookName, "turn_bytes", turnBytes, "budget", c.softTurnBudget)
		}

		c.Emit(kernelevents.EventHookContextInjection, map[string]any{
			"hook_name": inj.HookName,
			"role":      string(inj.Role),
			"size":      size,
			"event":     string(event),
		})
	}
}

// Emit builds an Event for name with fields and dispatches it through the
// session's hook registry, reconciling the verdict. Coordinator-internal
// lifecycle notifications (hook:context_injection, approval:*,
// user:notification) go through this, as do the provider/tool boundary
// events (provider:request/response, tool:pre/post) orchestrators raise
// via the coordinator they're handed at mount time, so they all carry the
// same session/turn/span causality fields. Emit opens a span named after
// the event for the duration of hook dispatch and stamps its derived
// SpanID onto the event before handlers see it, so the causality plumbing
// and any attached trace backend describe the same operation.
func (c *Coordinator) Emit(name kernelevents.EventName, fields map[string]any) hooks.Verdict {
	event := kernelevents.NewEvent(name)
	for k, v := range fields {
		event.Fields[k] = v
	}
	if c.seq != nil {
		event.Seq = c.seq.Next()
	}

	_, span, spanID := c.tracer.Start(context.Background(), string(name), "")
	event.WithSpan(spanID, "")
	defer c.tracer.End(span, nil)

	if c.hookReg == nil {
		return hooks.Verdict{Action: hooks.ActionContinue, Payload: event.Fields}
	}
	return c.hookReg.Emit(event)
}
