package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/microsoft/amplifier-core/pkg/kernelevents"
)

// Registry holds registered handlers and dispatches events to them in
// deterministic priority order, reconciling their verdicts per spec.md
// §4.3. Locking and the priority-sort-on-register shape follow the
// teacher's internal/hooks/registry.go; Trigger is replaced here by Emit,
// which folds verdicts instead of just logging handler errors.
type Registry struct {
	mu       sync.RWMutex
	byEvent  map[kernelevents.EventName][]*Registration
	byName   map[string]*Registration
	nextSeq  uint64
	defaults map[string]any
	logger   *slog.Logger

	messageSink userMessageSink
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byEvent:  make(map[kernelevents.EventName][]*Registration),
		byName:   make(map[string]*Registration),
		defaults: make(map[string]any),
		logger:   logger.With("component", "hooks"),
	}
}

// Register adds handler under name for event at priority. priority is used
// as given (zero and negative values are valid); there is no implicit
// default, so callers pass DefaultPriority explicitly. If a handler with
// this name already exists anywhere in the registry, it is replaced: the
// old registration is removed and the new one is inserted as the latest
// registration, so it ties after existing handlers of equal priority.
func (r *Registry) Register(event kernelevents.EventName, name string, handler Handler, priority Priority) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[name]; ok {
		r.removeLocked(existing)
	}

	r.nextSeq++
	reg := &Registration{
		Event:    event,
		Name:     name,
		Handler:  handler,
		Priority: priority,
		seq:      r.nextSeq,
	}
	r.byEvent[event] = append(r.byEvent[event], reg)
	r.byName[name] = reg
	r.sortLocked(event)

	r.logger.Debug("registered hook", "event", event, "name", name, "priority", priority)
}

func (r *Registry) sortLocked(event kernelevents.EventName) {
	list := r.byEvent[event]
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].seq < list[j].seq
	})
}

// Unregister removes the handler registered under name, across all events.
// Returns false if no such handler existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byName[name]
	if !ok {
		return false
	}
	r.removeLocked(reg)
	return true
}

// removeLocked must be called with r.mu held for writing.
func (r *Registry) removeLocked(reg *Registration) {
	delete(r.byName, reg.Name)
	list := r.byEvent[reg.Event]
	for i, other := range list {
		if other == reg {
			r.byEvent[reg.Event] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// SetDefaultFields records key-value pairs merged into every emitted
// event's fields, with the event's own explicit fields winning on
// collision. This is how a Session seeds session_id/parent_id/turn_id into
// every event it emits.
func (r *Registry) SetDefaultFields(fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range fields {
		r.defaults[k] = v
	}
}

// ClearDefaultField removes key from the default field set, so later
// emitted events no longer carry it unless they set it explicitly. Used by
// Session to drop turn_id from the defaults once a turn ends, so it stays
// non-null only while a turn is actually in progress.
func (r *Registry) ClearDefaultField(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defaults, key)
}

// HandlerInfo is a snapshot of one registration, returned by ListHandlers.
type HandlerInfo struct {
	Event    kernelevents.EventName
	Name     string
	Priority Priority
}

// ListHandlers returns a snapshot of registered handlers. If event is
// empty, all events' handlers are returned (grouped by their own event,
// each still sorted by priority then insertion order).
func (r *Registry) ListHandlers(event kernelevents.EventName) []HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []HandlerInfo
	if event != "" {
		for _, reg := range r.byEvent[event] {
			out = append(out, HandlerInfo{Event: reg.Event, Name: reg.Name, Priority: reg.Priority})
		}
		return out
	}

	events := make([]kernelevents.EventName, 0, len(r.byEvent))
	for e := range r.byEvent {
		events = append(events, e)
	}
	sort.Slice(events, func(i, j int) bool { return events[i] < events[j] })
	for _, e := range events {
		for _, reg := range r.byEvent[e] {
			out = append(out, HandlerInfo{Event: reg.Event, Name: reg.Name, Priority: reg.Priority})
		}
	}
	return out
}

// snapshot takes the handler list for event under the read lock and merges
// defaults into the event's fields (explicit fields win).
func (r *Registry) snapshot(event *kernelevents.Event) []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for k, v := range r.defaults {
		if _, exists := event.Fields[k]; !exists {
			event.Fields[k] = v
		}
	}

	list := r.byEvent[event.Name]
	out := make([]*Registration, len(list))
	copy(out, list)
	return out
}

// Emit dispatches event to its handlers sequentially in priority order and
// folds their verdicts into one reconciled Verdict, per spec.md §4.3's
// reconciliation algorithm: deny short-circuits, modify replaces the
// payload for the remaining chain, inject_context accumulates, ask_user
// short-circuits, continue is a no-op, and handler panics/errors are
// caught and treated as continue.
func (r *Registry) Emit(event *kernelevents.Event) Verdict {
	handlers := r.snapshot(event)

	verdict := Verdict{Action: ActionContinue, Payload: event.Fields}

	for _, reg := range handlers {
		current := &kernelevents.Event{
			Name:   event.Name,
			Ts:     event.Ts,
			Seq:    event.Seq,
			Fields: verdict.Payload,
		}

		result, err := r.invoke(reg, current)
		if err != nil {
			r.logger.Warn("hook handler error", "event", event.Name, "handler", reg.Name, "error", err)
			continue
		}

		switch result.Action {
		case ActionDeny:
			verdict.Action = ActionDeny
			verdict.Reason = result.Reason
			verdict.DenyingHook = reg.Name
			r.forwardUserMessage(reg.Name, result)
			return verdict

		case ActionModify:
			if result.Data != nil {
				verdict.Payload = result.Data
			}
			verdict.Action = ActionModify
			r.forwardUserMessage(reg.Name, result)

		case ActionInjectContext:
			role := result.ContextInjectionRole
			if role == "" {
				role = RoleSystem
			}
			verdict.Injections = append(verdict.Injections, Injection{
				Text:     result.ContextInjection,
				Role:     role,
				HookName: reg.Name,
			})
			r.forwardUserMessage(reg.Name, result)

		case ActionAskUser:
			verdict.Action = ActionAskUser
			verdict.AskingHook = reg.Name
			verdict.ApprovalPrompt = result.ApprovalPrompt
			verdict.ApprovalOptions = result.ApprovalOptions
			verdict.ApprovalTimeout = result.ApprovalTimeout
			verdict.ApprovalDefault = result.ApprovalDefault
			r.forwardUserMessage(reg.Name, result)
			return verdict

		case ActionContinue, "":
			r.forwardUserMessage(reg.Name, result)

		default:
			r.forwardUserMessage(reg.Name, result)
		}
	}

	return verdict
}

// userMessageSink receives fire-and-forget notifications a hook result
// asks to surface. The coordinator installs this to bridge to the
// external display system; Registry has no display dependency itself.
type userMessageSink func(hookName string, msg string, level MessageLevel)

func (r *Registry) forwardUserMessage(hookName string, result Result) {
	if result.UserMessage == "" {
		return
	}
	r.mu.RLock()
	sink := r.messageSink
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	level := result.UserMessageLevel
	if level == "" {
		level = LevelInfo
	}
	sink(hookName, result.UserMessage, level)
}

// SetUserMessageSink installs the callback invoked whenever a handler
// result carries a UserMessage. Passing nil disables forwarding.
func (r *Registry) SetUserMessageSink(sink func(hookName, msg string, level MessageLevel)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messageSink = sink
}

func (r *Registry) invoke(reg *Registration, event *kernelevents.Event) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &handlerPanic{name: reg.Name, value: p}
		}
	}()
	return reg.Handler(event)
}

type handlerPanic struct {
	name  string
	value any
}

func (e *handlerPanic) Error() string {
	return fmt.Sprintf("hook handler %q panicked: %v", e.name, e.value)
}

// EmitAndCollect dispatches event to its handlers sequentially, like Emit,
// but returns every raw per-handler Result instead of reconciling them, for
// orchestrators that need to see every observer's decision. Handler
// panics/errors are recorded as a Result with ActionContinue and logged,
// same as Emit.
//
// timeout, if positive, bounds the total wall-clock time spent across the
// whole handler chain (spec.md §4.3/§5's "optional whole-chain timeout").
// Each handler runs in its own goroutine so a single slow or hung handler
// can't block the ones after it past the deadline; once the deadline (or
// ctx) is reached, remaining handlers are skipped and the results gathered
// so far are returned. A non-positive timeout disables the bound
// entirely — handlers then run directly, with no goroutine overhead.
func (r *Registry) EmitAndCollect(ctx context.Context, event *kernelevents.Event, timeout time.Duration) []Result {
	handlers := r.snapshot(event)
	results := make([]Result, 0, len(handlers))

	if timeout <= 0 {
		for _, reg := range handlers {
			results = append(results, r.invokeLogged(event, reg))
		}
		return results
	}

	deadline := time.Now().Add(timeout)
	for _, reg := range handlers {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			r.logger.Warn("emit_and_collect timeout exceeded, skipping remaining handlers",
				"event", event.Name, "handler", reg.Name)
			break
		}

		done := make(chan Result, 1)
		go func(reg *Registration) { done <- r.invokeLogged(event, reg) }(reg)

		timer := time.NewTimer(remaining)
		select {
		case result := <-done:
			timer.Stop()
			results = append(results, result)
		case <-timer.C:
			r.logger.Warn("emit_and_collect handler exceeded chain timeout",
				"event", event.Name, "handler", reg.Name, "timeout", timeout)
			return results
		case <-ctx.Done():
			timer.Stop()
			r.logger.Warn("emit_and_collect cancelled", "event", event.Name, "error", ctx.Err())
			return results
		}
	}
	return results
}

// invokeLogged runs reg's handler and converts an error (including a
// recovered panic) into a zero Result, logging it the same way Emit does.
func (r *Registry) invokeLogged(event *kernelevents.Event, reg *Registration) Result {
	result, err := r.invoke(reg, event)
	if err != nil {
		r.logger.Warn("hook handler error", "event", event.Name, "handler", reg.Name, "error", err)
		return Result{Action: ActionContinue}
	}
	return result
}
