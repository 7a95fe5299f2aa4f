package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
)

// executeToolCalls is the TOOL_TURN body. Calls run strictly sequentially in
// emission order and each one is answered by exactly one tool-result message.
func (m *Machine) executeToolCalls(ctx context.Context, st *RunState, calls []core.ToolCallRequest) {
	batchStart := time.Now()

	for _, call := range calls {
		m.executeToolCall(ctx, st, call.Clone())
	}

	m.logger.Debug("flow.tools.batch.complete",
		"iteration", st.Iterations,
		"count", len(calls),
		"stop_after_tools", st.StopAfterTools,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
}

func (m *Machine) executeToolCall(ctx context.Context, st *RunState, call core.ToolCallRequest) {
	args := call.Arguments

	var hookErr error
	if before := m.opts.Hooks.BeforeTool; before != nil {
		hc := &HookContext{Type: HookBeforeTool, RunID: m.opts.RunID, Iteration: st.Iterations, Call: call.Clone()}
		out, err := m.runHook(ctx, before, hc, st, args)
		if err != nil {
			hookErr = err
		} else {
			m.applyHookState(st, out)
			if out.Arguments != nil {
				args = out.Arguments
			}
		}
	}

	correlationID := core.NewID()
	m.emit(ctx, stream.Event{
		Kind:          stream.KindToolStart,
		Iteration:     st.Iterations,
		CorrelationID: correlationID,
		Tool:          call.Name,
		Input:         maps.Clone(args),
	})

	start := time.Now()
	var (
		result any
		err    error
	)
	if hookErr != nil {
		err = &tool.ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("%s hook failed: %v", HookBeforeTool, hookErr),
			Code:    tool.CodeExecution,
			Details: hookErr,
		}
	} else {
		result, err = m.callTool(ctx, call.ID, call.Name, args)
	}
	dur := time.Since(start)

	m.logger.Info("flow.tool.executed",
		"iteration", st.Iterations,
		"tool", call.Name,
		"call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	content := resultContent(result, err)
	st.Messages = append(st.Messages, core.NewToolResultMessage(call.ID, call.Name, content))

	rec := ToolCallRecord{ID: call.ID, Tool: call.Name, Input: args, Output: result}
	if err != nil {
		rec.Error = errorText(err)
	}
	st.ToolCalls = append(st.ToolCalls, rec)

	m.emit(ctx, stream.Event{
		Kind:          stream.KindToolComplete,
		Iteration:     st.Iterations,
		CorrelationID: correlationID,
		Tool:          call.Name,
		Output:        content,
		Error:         rec.Error,
		DurationMS:    dur.Milliseconds(),
	})

	if after := m.opts.Hooks.AfterTool; after != nil {
		hc := &HookContext{
			Type:      HookAfterTool,
			RunID:     m.opts.RunID,
			Iteration: st.Iterations,
			Call:      call.Clone(),
			Output:    result,
			Err:       err,
			Duration:  dur,
		}
		out, herr := m.runHook(ctx, after, hc, st, args)
		if herr == nil {
			m.applyHookState(st, out)
		}
	}
}

// callTool looks up and invokes a tool, converting panics into errors.
func (m *Machine) callTool(ctx context.Context, callID, name string, args map[string]any) (result any, err error) {
	h, ok := m.opts.Tools.Get(name)
	if !ok {
		return nil, tool.NewToolError(name, fmt.Sprintf("unknown tool %q", name), tool.CodeUnknownTool)
	}

	defer func() {
		if r := recover(); r != nil {
			perr := panicError(r)
			m.logger.Error("flow.tool.panic", "tool", name, "call_id", callID, "recover", fmt.Sprint(r))
			result, err = nil, &tool.ToolError{Tool: name, Message: perr.Error(), Code: tool.CodePanic, Details: perr}
		}
	}()

	return h.Call(ctx, callID, maps.Clone(args), m.logger)
}

// runHook hands the hook a private copy of the state. A panicking hook is
// treated like one returning an error.
func (m *Machine) runHook(ctx context.Context, hook ToolHook, hc *HookContext, st *RunState, args map[string]any) (out HookState, err error) {
	in := HookState{
		Messages:       core.CloneMessages(st.Messages),
		Arguments:      maps.Clone(args),
		StopAfterTools: st.StopAfterTools,
	}

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
		if err != nil {
			m.logger.Warn("flow.hook.error", "hook", string(hc.Type), "tool", hc.Call.Name, "error", err.Error())
		}
	}()

	return hook(ctx, hc, in)
}

// applyHookState installs a hook's result. A nil Messages keeps the current
// sequence. The stop flag is sticky for the rest of the turn.
func (m *Machine) applyHookState(st *RunState, out HookState) {
	if out.Messages != nil {
		st.Messages = out.Messages
	}
	st.StopAfterTools = st.StopAfterTools || out.StopAfterTools
}

// resultContent renders a tool outcome as the text of its tool-result
// message. Strings pass through, other values are JSON encoded.
func resultContent(result any, err error) string {
	if err != nil {
		return "Error: " + errorText(err)
	}
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	}
	b, jerr := json.Marshal(result)
	if jerr != nil {
		return fmt.Sprint(result)
	}
	return string(b)
}

func errorText(err error) string {
	var te *tool.ToolError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// Stack returns the goroutine stack captured at recovery.
func (p *panicErr) Stack() []byte { return p.stack }

