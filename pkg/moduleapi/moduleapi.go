// Package moduleapi defines the contracts external modules implement and
// the kernel consumes: orchestrators, providers, tools, contexts, loaders,
// and the approval/display surfaces. The kernel never interprets module
// identifier strings and never calls providers or tools itself — only
// orchestrators do. Interface shapes follow the teacher's
// pkg/pluginsdk/contracts.go, generalized from nexus's channel/provider/tool
// split to the spec's Module/Provider/Tool/Context/Orchestrator split.
package moduleapi

import "context"

// ID is an opaque module identifier resolved only by the external Loader.
// The kernel stores and compares it but never parses it.
type ID string

// Message is one entry in a Context's transcript.
type Message struct {
	Role     string
	Content  string
	Metadata map[string]any
}

// ChatRequest is the input to a Provider's Complete/Stream calls.
type ChatRequest struct {
	Messages []Message
	Tools    []ToolSchema
	Options  map[string]any
}

// ChatResponse is a Provider's synchronous completion result.
type ChatResponse struct {
	Message    Message
	ToolCalls  []ToolCall
	StopReason string
	Raw        map[string]any
}

// ChatChunk is one unit of a Provider's streamed response.
type ChatChunk struct {
	Delta string
	Done  bool
}

// ToolCall is a request, surfaced by a provider response, to invoke a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResult is what a Tool's Execute returns.
type ToolResult struct {
	Output   string
	IsError  bool
	Metadata map[string]any
}

// ToolSchema describes a tool's accepted input for provider-side function
// calling.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Descriptor is an optional, purely additive manifest a module may expose
// alongside its Module implementation. The kernel never interprets or
// requires it; it exists for loaders, registries, and tooling built on top
// of the kernel, grounded on the teacher's pkg/pluginsdk.Manifest.
type Descriptor struct {
	ID           ID
	Name         string
	Version      string
	Description  string
	Capabilities []string
}

// Coordinator is the subset of the session coordinator surface modules are
// given at mount time. It is satisfied by internal/coordinator.Coordinator;
// defined here to avoid an import cycle between moduleapi and coordinator.
type Coordinator interface {
	SessionID() string
	ParentID() (string, bool)
	RegisterCapability(name string, value any)
	GetCapability(name string) (any, bool)
}

// Module is the entry point every external module implements. Mount may
// perform async setup (dial a backend, warm a cache) and optionally returns
// a Cleanup callback invoked on unmount or during session teardown; the
// order among modules' Cleanup callbacks at teardown is not defined.
type Module interface {
	Mount(ctx context.Context, coordinator Coordinator, config map[string]any) (instance any, cleanup Cleanup, err error)
}

// Cleanup tears down resources a Module acquired at mount time. A nil
// Cleanup means the module has nothing to release.
type Cleanup func(ctx context.Context) error

// Loader resolves opaque module identifiers to loaded modules. Implemented
// externally; the kernel only calls Load and treats any returned error as
// module-not-found, without inspecting it.
type Loader interface {
	Load(ctx context.Context, id ID) (Module, error)
}

// Provider is a chat/completion backend. Stream is optional: a Provider
// that cannot stream should return ErrStreamingUnsupported.
type Provider interface {
	Complete(ctx context.Context, req ChatRequest) (ChatResponse, error)
	Stream(ctx context.Context, req ChatRequest) (<-chan ChatChunk, error)
}

// Tool is an invocable capability exposed to providers via ToolSchema and
// invoked by an orchestrator via Execute.
type Tool interface {
	Execute(ctx context.Context, input map[string]any) (ToolResult, error)
	Schema() ToolSchema
}

// Context owns a session's conversation transcript and its compaction
// policy.
type Context interface {
	AddMessage(ctx context.Context, role, content string, metadata map[string]any) error
	GetMessages(ctx context.Context) ([]Message, error)
	ShouldCompact(ctx context.Context) (bool, error)
	Compact(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Cancellation is the read side of internal/cancel.Token handed to
// orchestrators; it exposes only what an orchestrator needs to cooperate,
// not the kernel-internal mutation methods.
type Cancellation interface {
	IsCancelled() bool
	IsGraceful() bool
	IsImmediate() bool
}

// Orchestrator drives a single turn: it reads the prompt, talks to
// providers and tools, and emits the lifecycle events the kernel's event
// bus carries. Coordinator is passed as `any` here to dodge a dependency on
// the coordinator package's emit surface, which is richer than the
// Coordinator interface above; orchestrators type-assert it to the
// concrete *coordinator.Coordinator they were built against.
type Orchestrator interface {
	Run(ctx context.Context, prompt string, coordinator any, cancellation Cancellation) (ChatResponse, error)
}

// ApprovalSystem gates side-effecting actions behind human or policy
// confirmation. RequestApproval returns an error when it cannot obtain a
// decision within timeoutSec; the coordinator treats any error as a
// timeout and applies `defaultOption`.
type ApprovalSystem interface {
	RequestApproval(ctx context.Context, prompt string, options []string, timeoutSec float64, defaultOption string) (string, error)
}

// DisplaySystem surfaces fire-and-forget notifications to whatever UI
// layer is mounted. Implementations must not block the caller on delivery
// failure; the kernel logs and discards DisplaySystem errors.
type DisplaySystem interface {
	ShowMessage(ctx context.Context, text string, level string, source string) error
}
