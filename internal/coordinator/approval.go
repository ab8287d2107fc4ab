package coordinator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/microsoft/amplifier-core/pkg/kernelevents"
)

// AllowForeverOption is the convention-bound option value a hook's
// approval_options may include to mean "allow and remember for the rest
// of this session." Coordinator caches a decision only when it equals
// this value; any other decision is re-requested every time the same
// (hook, prompt, options) key recurs.
const AllowForeverOption = "allow_always"

func approvalCacheKey(hookName, prompt string, options []string) string {
	sorted := make([]string, len(options))
	copy(sorted, options)
	sort.Strings(sorted)
	return hookName + "\x00" + prompt + "\x00" + strings.Join(sorted, "\x00")
}

// RequestApproval resolves an ask_user hook verdict: it consults the
// session-scoped allow-forever cache first, otherwise delegates to the
// external approval system with a timeout, mapping a timeout to
// defaultOption and an out-of-range response to deny, per spec.md §4.4.
// Every request and decision is emitted as an event.
func (c *Coordinator) RequestApproval(ctx context.Context, hookName, prompt string, options []string, timeoutSec float64, defaultOption string) (string, error) {
	key := approvalCacheKey(hookName, prompt, options)

	c.Emit(kernelevents.EventApprovalRequested, map[string]any{
		"hook_name": hookName,
		"prompt":    prompt,
		"options":   options,
	})

	c.mu.RLock()
	cached, hit := c.approvalCache[key]
	c.mu.RUnlock()
	if hit {
		c.Emit(kernelevents.EventApprovalDecision, map[string]any{
			"hook_name": hookName,
			"prompt":    prompt,
			"decision":  cached,
			"timed_out": false,
		})
		return cached, nil
	}

	reqCtx := ctx
	var cancelFn context.CancelFunc
	if timeoutSec > 0 {
		reqCtx, cancelFn = context.WithTimeout(ctx, time.Duration(timeoutSec*float64(time.Second)))
		defer cancelFn()
	}

	decision := defaultOption
	timedOut := false

	if c.approval != nil {
		result, err := c.approval.RequestApproval(reqCtx, prompt, options, timeoutSec, defaultOption)
		switch {
		case err != nil:
			timedOut = true
			decision = defaultOption
		case !isValidOption(result, options):
			decision = "deny"
		default:
			decision = result
		}
	}

	if timedOut {
		c.Emit(kernelevents.EventApprovalTimeout, map[string]any{
			"hook_name": hookName,
			"prompt":    prompt,
			"default":   defaultOption,
		})
	}

	if decision == AllowForeverOption {
		c.mu.Lock()
		c.approvalCache[key] = decision
		c.mu.Unlock()
	}

	c.Emit(kernelevents.EventApprovalDecision, map[string]any{
		"hook_name": hookName,
		"prompt":    prompt,
		"decision":  decision,
		"timed_out": timedOut,
	})

	return decision, nil
}

func isValidOption(value string, options []string) bool {
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

// ForwardUserMessage surfaces a hook's user_message to the external
// display system (fire-and-forget; failures logged, never raised) and
// emits user:notification so the event stream carries it regardless of
// display availability.
func (c *Coordinator) ForwardUserMessage(ctx context.Context, hookName, text, level string) {
	c.Emit(kernelevents.EventUserNotification, map[string]any{
		"source": "hook:" + hookName,
		"text":   text,
		"level":  level,
	})

	if c.display == nil {
		return
	}
	if err := c.display.ShowMessage(ctx, text, level, "hook:"+hookName); err != nil {
		c.logger.Warn("display system failed to show message", "hook_name", hookName, "error", err)
	}
}
