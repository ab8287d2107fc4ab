// Package session implements the kernel's session lifecycle: construct,
// initialize mounted modules from a mount plan, drive turns, fork child
// sessions, and clean up (§4.5). The lifecycle-state machine and
// event-emission-at-each-transition pattern are grounded on the teacher's
// internal/agent runtime (its EventEmitter sequencing turn/iter-scoped
// events) generalized one layer up to the kernel's own
// session/turn/coordinator split.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/microsoft/amplifier-core/internal/cancel"
	"github.com/microsoft/amplifier-core/internal/coordinator"
	"github.com/microsoft/amplifier-core/internal/hooks"
	"github.com/microsoft/amplifier-core/internal/kernelerrors"
	"github.com/microsoft/amplifier-core/internal/mountplan"
	"github.com/microsoft/amplifier-core/pkg/kernelevents"
	"github.com/microsoft/amplifier-core/pkg/moduleapi"
)

// State is one of a Session's three lifecycle states.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateCleanedUp     State = "cleaned_up"
)

// Source explains why a session is starting, carried on its session:start
// event.
type Source string

const (
	SourceStartup Source = "startup"
	SourceResume  Source = "resume"
	SourceFork    Source = "fork"
)

// Options configures Session construction (§4.5's constructor signature).
type Options struct {
	Config         *mountplan.Plan
	Loader         moduleapi.Loader
	SessionID      kernelevents.SessionID // generated if empty
	ParentID       *kernelevents.SessionID
	ApprovalSystem moduleapi.ApprovalSystem
	DisplaySystem  moduleapi.DisplaySystem
	IsResumed      bool
	Logger         *slog.Logger
}

// Session is the kernel's top-level lifecycle object. The zero value is
// not usable; construct with New.
type Session struct {
	mu sync.Mutex

	sessionID kernelevents.SessionID
	parentID  *kernelevents.SessionID
	config    *mountplan.Plan
	loader    moduleapi.Loader
	isResumed bool

	seq   *kernelevents.Sequencer
	hooks *hooks.Registry
	coord *coordinator.Coordinator
	token *cancel.Token

	state  State
	logger *slog.Logger
}

// New constructs a Session per spec.md §4.5: generates session_id if
// absent, stores config verbatim, creates the coordinator, and seeds the
// hook registry's default fields so every later event carries causality.
func New(opts Options) *Session {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = kernelevents.NewSessionID()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "session", "session_id", string(sessionID))

	seq := &kernelevents.Sequencer{}
	hookReg := hooks.New(logger)

	defaults := map[string]any{kernelevents.FieldSessionID: string(sessionID)}
	if opts.ParentID != nil {
		defaults[kernelevents.FieldParentID] = string(*opts.ParentID)
	}
	hookReg.SetDefaultFields(defaults)

	token := cancel.New(logger)

	coord := coordinator.New(coordinator.Options{
		SessionID:         sessionID,
		ParentID:          opts.ParentID,
		Config:            opts.Config,
		Loader:            opts.Loader,
		Sequencer:         seq,
		HookRegistry:      hookReg,
		CancellationToken: token,
		ApprovalSystem:    opts.ApprovalSystem,
		DisplaySystem:     opts.DisplaySystem,
		Logger:            logger,
	})

	s := &Session{
		sessionID: sessionID,
		parentID:  opts.ParentID,
		config:    opts.Config,
		loader:    opts.Loader,
		isResumed: opts.IsResumed,
		seq:       seq,
		hooks:     hookReg,
		coord:     coord,
		token:     token,
		state:     StateUninitialized,
		logger:    logger,
	}
	coord.SetSession(s)
	return s
}

// SessionID returns this session's identifier.
func (s *Session) SessionID() kernelevents.SessionID { return s.sessionID }

// ParentID returns the forking parent's identifier, if any.
func (s *Session) ParentID() (kernelevents.SessionID, bool) {
	if s.parentID == nil {
		return "", false
	}
	return *s.parentID, true
}

// Coordinator exposes the session's coordinator to callers that need to
// drive modules directly (tests, orchestrators holding a reference).
func (s *Session) Coordinator() *coordinator.Coordinator { return s.coord }

// CancellationToken exposes the session's cancellation token.
func (s *Session) CancellationToken() *cancel.Token { return s.token }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) emit(name kernelevents.EventName, fields map[string]any) hooks.Verdict {
	event := kernelevents.NewEvent(name)
	for k, v := range fields {
		event.Fields[k] = v
	}
	event.Seq = s.seq.Next()
	return s.hooks.Emit(event)
}

// moduleOrder is the dependency order initialize walks, per spec.md §4.5:
// context before providers before tools before hooks before orchestrator.
type moduleOrder struct {
	point coordinator.Point
	refs  []mountplan.ModuleRef
	fatal bool
}

func (s *Session) moduleOrders() []moduleOrder {
	return []moduleOrder{
		{point: coordinator.PointContext, refs: []mountplan.ModuleRef{{Module: s.config.Session.Context}}, fatal: true},
		{point: coordinator.PointProviders, refs: s.config.Providers, fatal: false},
		{point: coordinator.PointTools, refs: s.config.Tools, fatal: false},
		{point: coordinator.PointHooks, refs: s.config.Hooks, fatal: false},
		{point: coordinator.PointOrchestrator, refs: []mountplan.ModuleRef{{Module: s.config.Session.Orchestrator}}, fatal: true},
	}
}

// Initialize walks the mount plan in dependency order (context → providers
// → tools → hooks → orchestrator), resolving and mounting each module.
// Idempotent: a second call is a no-op. Missing/failed orchestrator or
// context is fatal; provider/tool/hook failures are logged and skipped.
// At least one provider must end up mounted or initialization fails.
func (s *Session) Initialize(ctx context.Context, source Source) error {
	s.mu.Lock()
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	mountedProviders := 0

	for _, order := range s.moduleOrders() {
		for i, ref := range order.refs {
			if ref.Module == "" {
				continue
			}
			name := ref.Module
			if order.point != coordinator.PointOrchestrator && order.point != coordinator.PointContext {
				name = fmt.Sprintf("%s#%d", ref.Module, i)
			}

			mod, err := s.loader.Load(ctx, moduleapi.ID(ref.Module))
			if err != nil {
				if order.fatal {
					return kernelerrors.New(kernelerrors.KindModuleNotFound, "Session.Initialize", err)
				}
				s.logger.Warn("module not found, skipping", "point", order.point, "module", ref.Module, "error", err)
				continue
			}

			if _, err := s.coord.Mount(ctx, order.point, name, mod, ref.Config); err != nil {
				if order.fatal {
					return kernelerrors.New(kernelerrors.KindModuleLoadFailure, "Session.Initialize", err)
				}
				s.logger.Warn("module mount failed, skipping", "point", order.point, "module", ref.Module, "error", err)
				continue
			}

			if order.point == coordinator.PointProviders {
				mountedProviders++
			}
		}
	}

	if mountedProviders == 0 {
		return kernelerrors.New(kernelerrors.KindModuleLoadFailure, "Session.Initialize",
			fmt.Errorf("no provider ended up mounted"))
	}

	s.mu.Lock()
	s.state = StateInitialized
	s.mu.Unlock()

	s.emit(kernelevents.EventSessionStart, map[string]any{"source": string(source)})
	return nil
}

// Execute drives one turn: requires Initialize to have succeeded,
// generates a turn_id, resets the per-turn injection budget, emits
// turn:start, calls the mounted orchestrator's Run, and always emits
// turn:end. On error it emits turn:error before re-raising.
func (s *Session) Execute(ctx context.Context, prompt string) (moduleapi.ChatResponse, error) {
	if s.State() != StateInitialized {
		return moduleapi.ChatResponse{}, kernelerrors.New(kernelerrors.KindNotInitialized, "Session.Execute", nil)
	}

	turnID := kernelevents.NewTurnID()
	// turn_id is a default only for the duration of this turn: events a
	// mounted module emits mid-turn without explicitly stamping turn_id
	// (e.g. tool:pre/tool:post through the coordinator) still pick it up,
	// but it must not leak onto events emitted once the turn has ended
	// (turn_id is non-null iff a turn is in progress) — ClearDefaultField
	// below undoes this before turn:end is emitted.
	s.hooks.SetDefaultFields(map[string]any{kernelevents.FieldTurnID: string(turnID)})
	s.coord.ResetTurn()

	s.emit(kernelevents.EventTurnStart, map[string]any{"turn_id": string(turnID), "prompt": prompt})

	var resp moduleapi.ChatResponse
	var runErr error

	defer func() {
		s.hooks.ClearDefaultField(kernelevents.FieldTurnID)
		fields := map[string]any{"turn_id": string(turnID)}
		if runErr != nil {
			fields["error"] = runErr.Error()
		}
		s.emit(kernelevents.EventTurnEnd, fields)
	}()

	orchInstance, err := s.coord.Get(coordinator.PointOrchestrator, "")
	if err != nil {
		runErr = kernelerrors.New(kernelerrors.KindModuleNotFound, "Session.Execute", err)
		s.emit(kernelevents.EventTurnError, map[string]any{"turn_id": string(turnID), "error": runErr.Error()})
		return resp, runErr
	}
	orch, ok := orchInstance.(moduleapi.Orchestrator)
	if !ok {
		runErr = kernelerrors.New(kernelerrors.KindModuleLoadFailure, "Session.Execute",
			fmt.Errorf("mounted orchestrator does not implement moduleapi.Orchestrator"))
		s.emit(kernelevents.EventTurnError, map[string]any{"turn_id": string(turnID), "error": runErr.Error()})
		return resp, runErr
	}

	resp, runErr = orch.Run(ctx, prompt, s.coord, s.token)
	if runErr != nil {
		if s.token.IsImmediate() {
			runErr = kernelerrors.New(kernelerrors.KindCancelled, "Session.Execute", runErr)
		}
		s.emit(kernelevents.EventTurnError, map[string]any{"turn_id": string(turnID), "error": runErr.Error()})
		s.emit(kernelevents.EventSessionError, map[string]any{"turn_id": string(turnID), "error": runErr.Error()})
		return resp, runErr
	}

	return resp, nil
}

// Fork creates a new Session with parent_id set to this session's id,
// sharing the loader but receiving a fresh coordinator and hook registry.
// The child's mount plan is derived by shallow-merging override on top of
// this session's config. The child's lifecycle is independent — cleaning
// up the parent does not clean up children.
func (s *Session) Fork(ctx context.Context, override *mountplan.Plan) (*Session, error) {
	childConfig := s.config.Merge(override)
	parentID := s.sessionID

	child := New(Options{
		Config:    childConfig,
		Loader:    s.loader,
		ParentID:  &parentID,
		IsResumed: false,
		Logger:    s.logger,
	})

	s.emit(kernelevents.EventSessionFork, map[string]any{"child_session_id": string(child.sessionID)})

	if err := child.Initialize(ctx, SourceFork); err != nil {
		return nil, err
	}
	return child, nil
}

// Cleanup requests graceful cancellation, runs every registered teardown
// (coordinator.Cleanup), emits session:end, and marks the session
// terminal. Idempotent.
func (s *Session) Cleanup(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateCleanedUp {
		s.mu.Unlock()
		return
	}
	s.state = StateCleanedUp
	s.mu.Unlock()

	s.token.RequestGraceful()
	s.coord.Cleanup(ctx)
	s.emit(kernelevents.EventSessionEnd, nil)
}

// WithSession is the scoped-acquisition form of the Session lifecycle
// (spec.md §4.5's "async scope"): it constructs a session, runs Initialize,
// hands the initialized session to fn, and unconditionally runs Cleanup on
// the way out, including when fn panics. The session is always cleaned up
// even if fn returns an error; that error (or an Initialize failure) is
// what WithSession returns.
func WithSession(ctx context.Context, opts Options, source Source, fn func(ctx context.Context, s *Session) error) (err error) {
	s := New(opts)

	if initErr := s.Initialize(ctx, source); initErr != nil {
		return initErr
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		s.Cleanup(cleanupCtx)
		if p := recover(); p != nil {
			panic(p)
		}
	}()

	return fn(ctx, s)
}
