// Package kernelerrors defines the kernel's error taxonomy: sentinel errors
// for errors.Is checks plus a Kind-tagged wrapper for callers that need to
// branch on the failure category, mirroring the teacher's
// internal/agent/errors.go ToolError pattern one layer up.
package kernelerrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a kernel error for recovery-policy decisions (fatal vs.
// logged-and-contained), per spec.md §7's error taxonomy table.
type Kind string

const (
	// KindConfigInvalid: mount plan missing required keys. Fatal to session
	// construction.
	KindConfigInvalid Kind = "config_invalid"

	// KindModuleNotFound: the loader could not resolve a module id. Fatal
	// for orchestrator/context, logged-and-skipped for providers/tools/hooks.
	KindModuleNotFound Kind = "module_not_found"

	// KindModuleLoadFailure: a module's mount() entry point returned an
	// error. Same recovery policy as KindModuleNotFound.
	KindModuleLoadFailure Kind = "module_load_failure"

	// KindNotInitialized: execute() called before initialize(). Fatal,
	// raised to the caller.
	KindNotInitialized Kind = "not_initialized"

	// KindAlreadyInitialized: initialize() called twice. Suppressed —
	// initialize() is idempotent and this Kind exists for completeness of
	// the taxonomy rather than for callers to act on.
	KindAlreadyInitialized Kind = "already_initialized"

	// KindMountConflict: mounting onto an occupied singleton mount point.
	// Fatal at mount time.
	KindMountConflict Kind = "mount_conflict"

	// KindInjectionTooLarge: a hook context injection exceeded the hard
	// per-injection byte limit. The injection is dropped; the session
	// continues.
	KindInjectionTooLarge Kind = "injection_too_large"

	// KindHookHandlerError: a hook handler returned an error or panicked.
	// Caught, logged, and treated as action=continue; non-fatal.
	KindHookHandlerError Kind = "hook_handler_error"

	// KindCancelled: execute() was interrupted by immediate cancellation.
	// Surfaced to the caller.
	KindCancelled Kind = "cancelled"

	// KindApprovalTimeout: an approval request exceeded its timeout.
	// Mapped to approval_default; never re-raised as a hard failure.
	KindApprovalTimeout Kind = "approval_timeout"

	// KindCapabilityNotFound: a capability name no module has registered.
	// Coordinator.GetCapability reports a missing name with ok=false and
	// does not return this Kind.
	KindCapabilityNotFound Kind = "capability_not_found"

	// KindMountNotFound: get() was called for a mount point/name that has
	// no installed module.
	KindMountNotFound Kind = "mount_not_found"
)

// Error wraps a Kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New constructs a kernel error. err may be nil when the Kind itself is the
// whole story (e.g. KindNotInitialized).
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As keep working
// through this type.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same Kind, so callers can
// write errors.Is(err, kernelerrors.New(kernelerrors.KindNotInitialized, "", nil))
// as well as errors.Is(err, kernelerrors.ErrNotInitialized).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinel errors for simple errors.Is checks without constructing a Kind.
var (
	ErrConfigInvalid      = New(KindConfigInvalid, "", nil)
	ErrModuleNotFound     = New(KindModuleNotFound, "", nil)
	ErrModuleLoadFailure  = New(KindModuleLoadFailure, "", nil)
	ErrNotInitialized     = New(KindNotInitialized, "", nil)
	ErrAlreadyInitialized = New(KindAlreadyInitialized, "", nil)
	ErrMountConflict      = New(KindMountConflict, "", nil)
	ErrInjectionTooLarge  = New(KindInjectionTooLarge, "", nil)
	ErrHookHandlerError   = New(KindHookHandlerError, "", nil)
	ErrCancelled          = New(KindCancelled, "", nil)
	ErrApprovalTimeout    = New(KindApprovalTimeout, "", nil)
	ErrCapabilityNotFound = New(KindCapabilityNotFound, "", nil)
	ErrMountNotFound      = New(KindMountNotFound, "", nil)
)

// Of reports whether err carries the given Kind anywhere in its chain.
func Of(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}
