// Package coordinator implements the mount table, capability map,
// contribution channels, injection budget, and approval/display delegation
// a Session hands to every mounted module (§4.4). The mount-table shape
// (named entries under a lazily-loaded registry, sync.Mutex-guarded) is
// grounded on the teacher's internal/plugins/runtime_registry.go
// (RuntimeRegistry, runtimeEntry); the emit/event wiring reuses
// internal/hooks.Registry and pkg/kernelevents directly.
package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/microsoft/amplifier-core/internal/cancel"
	"github.com/microsoft/amplifier-core/internal/hooks"
	"github.com/microsoft/amplifier-core/internal/kernelerrors"
	"github.com/microsoft/amplifier-core/internal/mountplan"
	"github.com/microsoft/amplifier-core/pkg/kernelevents"
	"github.com/microsoft/amplifier-core/pkg/moduleapi"
)

// Point names a mount point. orchestrator and context are singleton
// points; providers, tools, hooks, and agents are named multi-mounts.
type Point string

const (
	PointOrchestrator Point = "orchestrator"
	PointContext      Point = "context"
	PointProviders    Point = "providers"
	PointTools        Point = "tools"
	PointHooks        Point = "hooks"
	PointAgents       Point = "agents"
)

func isSingleton(p Point) bool {
	return p == PointOrchestrator || p == PointContext
}

type mountedEntry struct {
	name     string
	instance any
	cleanup  moduleapi.Cleanup
}

// Coordinator is the per-session registry through which modules discover
// each other at run time. The zero value is not usable; construct with
// New.
type Coordinator struct {
	mu sync.RWMutex

	sessionID kernelevents.SessionID
	parentID  *kernelevents.SessionID
	config    *mountplan.Plan
	loader    moduleapi.Loader
	session   any // set by internal/session after construction to break the import cycle

	singles map[Point]*mountedEntry
	multis  map[Point][]*mountedEntry // insertion order preserved

	capabilities map[string]any

	contributors map[string][]namedContributor

	seq     *kernelevents.Sequencer
	hookReg *hooks.Registry
	token   *cancel.Token
	tracer  *kernelevents.Tracer

	approval      moduleapi.ApprovalSystem
	display       moduleapi.DisplaySystem
	approvalCache map[string]string

	hardInjectionLimit int
	softTurnBudget     int
	turnBytes          int

	cleanups []func(ctx context.Context) error

	logger *slog.Logger
}

// Options configures a new Coordinator. SoftTurnBudget defaults to 4000
// and HardInjectionLimit to 10240 (spec.md §4.4) when left at zero.
type Options struct {
	SessionID          kernelevents.SessionID
	ParentID           *kernelevents.SessionID
	Config             *mountplan.Plan
	Loader             moduleapi.Loader
	Sequencer          *kernelevents.Sequencer
	HookRegistry       *hooks.Registry
	CancellationToken  *cancel.Token
	Tracer             *kernelevents.Tracer
	ApprovalSystem     moduleapi.ApprovalSystem
	DisplaySystem      moduleapi.DisplaySystem
	HardInjectionLimit int
	SoftTurnBudget     int
	Logger             *slog.Logger
}

const (
	defaultHardInjectionLimit = 10240
	defaultSoftTurnBudget     = 4000
)

// New constructs a Coordinator from Options.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hard := opts.HardInjectionLimit
	if hard <= 0 {
		hard = defaultHardInjectionLimit
	}
	soft := opts.SoftTurnBudget
	if soft <= 0 {
		soft = defaultSoftTurnBudget
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = kernelevents.NewTracer("amplifier-core/coordinator", nil)
	}

	c := &Coordinator{
		sessionID:          opts.SessionID,
		parentID:           opts.ParentID,
		config:             opts.Config,
		loader:             opts.Loader,
		singles:            make(map[Point]*mountedEntry),
		multis:             make(map[Point][]*mountedEntry),
		capabilities:       make(map[string]any),
		contributors:       make(map[string][]namedContributor),
		seq:                opts.Sequencer,
		hookReg:            opts.HookRegistry,
		token:              opts.CancellationToken,
		tracer:             tracer,
		approval:           opts.ApprovalSystem,
		display:            opts.DisplaySystem,
		approvalCache:      make(map[string]string),
		hardInjectionLimit: hard,
		softTurnBudget:     soft,
		logger:             logger.With("component", "coordinator"),
	}
	if c.hookReg != nil {
		c.hookReg.SetUserMessageSink(func(hookName, msg string, level hooks.MessageLevel) {
			c.ForwardUserMessage(context.Background(), hookName, msg, string(level))
		})
	}
	return c
}

// SetSession records the owning Session, used only for the read-only
// Session() accessor modules may consult. Called once by internal/session
// right after New.
func (c *Coordinator) SetSession(session any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// --- infrastructure read-only accessors (§4.4) ---

func (c *Coordinator) SessionID() string { return string(c.sessionID) }

func (c *Coordinator) ParentID() (string, bool) {
	if c.parentID == nil {
		return "", false
	}
	return string(*c.parentID), true
}

func (c *Coordinator) Config() *mountplan.Plan { return c.config }

func (c *Coordinator) Session() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Coordinator) Loader() moduleapi.Loader { return c.loader }

func (c *Coordinator) HookRegistry() *hooks.Registry { return c.hookReg }

func (c *Coordinator) CancellationToken() *cancel.Token { return c.token }

// --- mount table ---

// Mount installs module at point under name (ignored for singleton
// points), invoking the module's own Mount entry point with this
// coordinator and config. Mounting a singleton point that is already
// occupied fails with KindMountConflict.
func (c *Coordinator) Mount(ctx context.Context, point Point, name string, module moduleapi.Module, config map[string]any) (any, error) {
	if isSingleton(point) {
		name = string(point)
	}

	c.mu.Lock()
	if isSingleton(point) {
		if _, exists := c.singles[point]; exists {
			c.mu.Unlock()
			return nil, kernelerrors.New(kernelerrors.KindMountConflict, "Coordinator.Mount", nil)
		}
	}
	c.mu.Unlock()

	instance, cleanup, err := module.Mount(ctx, c, config)
	if err != nil {
		return nil, kernelerrors.New(kernelerrors.KindModuleLoadFailure, "Coordinator.Mount", err)
	}

	entry := &mountedEntry{name: name, instance: instance, cleanup: cleanup}

	c.mu.Lock()
	defer c.mu.Unlock()
	if isSingleton(point) {
		c.singles[point] = entry
	} else {
		c.multis[point] = append(c.multis[point], entry)
	}

	c.logger.Debug("mounted module", "point", point, "name", name)
	return instance, nil
}

// Unmount removes name from point, invoking its teardown callback if any.
func (c *Coordinator) Unmount(ctx context.Context, point Point, name string) error {
	c.mu.Lock()

	var entry *mountedEntry
	if isSingleton(point) {
		entry = c.singles[point]
		delete(c.singles, point)
	} else {
		list := c.multis[point]
		for i, e := range list {
			if e.name == name {
				entry = e
				c.multis[point] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()

	if entry == nil {
		return kernelerrors.New(kernelerrors.KindMountNotFound, "Coordinator.Unmount", nil)
	}
	if entry.cleanup != nil {
		if err := entry.cleanup(ctx); err != nil {
			c.logger.Warn("module cleanup failed on unmount", "point", point, "name", name, "error", err)
		}
	}
	return nil
}

// Get retrieves the instance mounted at point under name. name is ignored
// for singleton points.
func (c *Coordinator) Get(point Point, name string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if isSingleton(point) {
		entry, ok := c.singles[point]
		if !ok {
			return nil, kernelerrors.New(kernelerrors.KindMountNotFound, "Coordinator.Get", nil)
		}
		return entry.instance, nil
	}

	if name == "" {
		return nil, kernelerrors.New(kernelerrors.KindMountNotFound, "Coordinator.Get", nil)
	}
	for _, e := range c.multis[point] {
		if e.name == name {
			return e.instance, nil
		}
	}
	return nil, kernelerrors.New(kernelerrors.KindMountNotFound, "Coordinator.Get", nil)
}

// List returns the names mounted at a multi-mount point, in insertion
// order.
func (c *Coordinator) List(point Point) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.multis[point]
	names := make([]string, len(list))
	for i, e := range list {
		names[i] = e.name
	}
	return names
}

// --- cleanup (§4.4) ---

// RegisterCleanup records a teardown callback invoked, in reverse
// registration order, by Cleanup.
func (c *Coordinator) RegisterCleanup(cb func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, cb)
}

// Cleanup invokes the callbacks registered via RegisterCleanup in reverse
// registration order, then the teardown callback of every still-mounted
// module, catching and logging failures so one does not prevent the rest.
// Module teardowns run in no defined order; mount order is not tracked.
func (c *Coordinator) Cleanup(ctx context.Context) {
	c.mu.Lock()
	cbs := make([]func(ctx context.Context) error, len(c.cleanups))
	copy(cbs, c.cleanups)
	c.cleanups = nil

	var entries []*mountedEntry
	for _, e := range c.singles {
		entries = append(entries, e)
	}
	for _, list := range c.multis {
		entries = append(entries, list...)
	}
	c.singles = make(map[Point]*mountedEntry)
	c.multis = make(map[Point][]*mountedEntry)
	c.mu.Unlock()

	for i := len(cbs) - 1; i >= 0; i-- {
		c.runCleanup(ctx, cbs[i])
	}
	for _, e := range entries {
		if e.cleanup != nil {
			c.runCleanup(ctx, e.cleanup)
		}
	}
}

func (c *Coordinator) runCleanup(ctx context.Context, cb func(ctx context.Context) error) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Warn("cleanup callback panicked", "panic", p)
		}
	}()
	if err := cb(ctx); err != nil {
		c.logger.Warn("cleanup callback failed", "error", err)
	}
}
