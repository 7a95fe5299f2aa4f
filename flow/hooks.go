package flow

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/core"
)

// HookType identifies the interception point a hook runs at.
type HookType string

const (
	// HookBeforeTool runs before a tool call. It may rewrite the pending
	// arguments and replace the message sequence.
	HookBeforeTool HookType = "before_tool"

	// HookAfterTool runs after a tool call with its output. It may replace
	// the message sequence and set the stop flag.
	HookAfterTool HookType = "after_tool"
)

// HookContext describes the tool call a hook is invoked for.
type HookContext struct {
	Type      HookType
	RunID     string
	Iteration int
	Call      core.ToolCallRequest

	// Set for HookAfterTool only.
	Output   any
	Err      error
	Duration time.Duration
}

// HookState is the part of the run a hook observes and may replace. Hooks
// receive a private copy and return the state to continue with; returning
// the input unchanged is a no-op.
//
// Messages replaces the whole conversation when returned. Arguments is
// honoured for HookBeforeTool only. StopAfterTools ends the run once every
// call of the current tool turn has been processed.
type HookState struct {
	Messages       []core.Message
	Arguments      map[string]any
	StopAfterTools bool
}

// ToolHook intercepts a tool call. A before-hook error is reported to the
// model as the call's result and the tool is not invoked; an after-hook
// error is logged and the state is kept.
type ToolHook func(ctx context.Context, hc *HookContext, st HookState) (HookState, error)

// Hooks bundles the optional tool interception points.
type Hooks struct {
	BeforeTool ToolHook
	AfterTool  ToolHook
}

// StopAfterTools returns an after-hook that sets the stop flag once pred
// reports true.
func StopAfterTools(pred func(hc *HookContext) bool) ToolHook {
	return func(_ context.Context, hc *HookContext, st HookState) (HookState, error) {
		if pred(hc) {
			st.StopAfterTools = true
		}
		return st, nil
	}
}
