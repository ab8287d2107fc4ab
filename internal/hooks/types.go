// Package hooks implements the kernel's deterministic, priority-ordered
// event pipeline: registration, sequential emission, and reconciliation of
// per-handler verdicts into a single decision. Registration and priority
// ordering are grounded on the teacher's internal/hooks/registry.go
// (Registry, RegisterOption, priority sort); the verdict/reconciliation
// model is new work generalizing the teacher's error-returning
// Handler func(ctx, *Event) error into an explicit Result value, per
// spec.md §9's design note to "replace exception-based non-local control
// with explicit result value."
package hooks

import "github.com/microsoft/amplifier-core/pkg/kernelevents"

// Action is a handler's proposed verdict for one emitted event.
type Action string

const (
	ActionContinue      Action = "continue"
	ActionDeny          Action = "deny"
	ActionModify        Action = "modify"
	ActionInjectContext Action = "inject_context"
	ActionAskUser       Action = "ask_user"
)

// ContextRole is the conversational role a context injection is attributed
// to.
type ContextRole string

const (
	RoleSystem    ContextRole = "system"
	RoleUser      ContextRole = "user"
	RoleAssistant ContextRole = "assistant"
)

// MessageLevel is the severity of a user-facing notification a handler
// asks the display system to show.
type MessageLevel string

const (
	LevelInfo    MessageLevel = "info"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// Result is the value object a Handler returns in place of raising an
// exception for non-local control flow. The zero value is a no-op
// ActionContinue.
type Result struct {
	Action Action
	Reason string

	// Data replaces the payload for subsequent handlers when Action is
	// ActionModify.
	Data map[string]any

	// ContextInjection/ContextInjectionRole carry the text and role to
	// inject into the conversation when Action is ActionInjectContext.
	// RoleSystem is the default when Role is empty.
	ContextInjection     string
	ContextInjectionRole ContextRole

	// UserMessage/UserMessageLevel are forwarded to the display system
	// independent of Action.
	UserMessage      string
	UserMessageLevel MessageLevel

	// SuppressOutput hides this hook's own output from the transcript.
	SuppressOutput bool

	// ApprovalPrompt/ApprovalOptions/ApprovalTimeout/ApprovalDefault
	// parametrize the ask_user flow when Action is ActionAskUser.
	ApprovalPrompt  string
	ApprovalOptions []string
	ApprovalTimeout float64
	ApprovalDefault string
}

// Injection is one accumulated inject_context verdict, carrying which
// handler produced it for the source metadata the coordinator attaches to
// the resulting context message.
type Injection struct {
	Text     string
	Role     ContextRole
	HookName string
}

// Verdict is the reconciled outcome of one emit() call: a single Action
// (continue/deny/modify/ask_user) plus any accumulated context injections
// and the final payload.
type Verdict struct {
	Action  Action
	Reason  string
	Payload map[string]any

	Injections []Injection

	// ApprovalPrompt etc. are populated when Action is ActionAskUser, taken
	// from the short-circuiting handler's Result.
	ApprovalPrompt  string
	ApprovalOptions []string
	ApprovalTimeout float64
	ApprovalDefault string

	// DenyingHook/AskingHook name the handler that produced a short-circuit,
	// for logging and approval cache keys.
	DenyingHook string
	AskingHook  string
}

// Handler processes one emitted event and returns its proposed verdict.
// Handlers must not block indefinitely; Registry.EmitAndCollect takes an
// optional whole-chain timeout for callers that need a bound.
type Handler func(event *kernelevents.Event) (Result, error)

// Priority is a signed integer; lower runs earlier, ties break on
// registration order. 100 is the default per spec.md §4.3.
type Priority int

const DefaultPriority Priority = 100

// Registration is a single registered handler.
type Registration struct {
	Event    kernelevents.EventName
	Name     string
	Handler  Handler
	Priority Priority

	seq uint64 // insertion order, for stable priority ties
}
