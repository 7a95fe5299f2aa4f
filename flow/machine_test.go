package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
)

var exprParams = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"expr": map[string]any{"type": "string"},
	},
	"required": []any{"expr"},
}

func calcTool(fn tool.Executor) *tool.Bound {
	return &tool.Bound{Tool: tool.NewFunctionTool("calc", "evaluates arithmetic", exprParams, fn)}
}

func noSleep(c *retry.Controller) {
	c.Sleep = func(context.Context, time.Duration) error { return nil }
}

func newMachine(t *testing.T, llm model.Model, optFns ...func(o *Options)) *Machine {
	t.Helper()
	fns := append([]func(o *Options){func(o *Options) {
		o.Model = llm
		o.Config = model.DefaultConfig("scripted/test")
		o.Retry = retry.New(0, noSleep)
	}}, optFns...)
	m, err := NewMachine(fns...)
	require.NoError(t, err)
	return m
}

func initial() RunState {
	return NewRunState("You are helpful.", core.NewHumanMessage("What's 2+2?"))
}

func call(id, name string, args map[string]any) core.ToolCallRequest {
	return core.ToolCallRequest{ID: id, Name: name, Arguments: args}
}

func TestNewMachine_Validation(t *testing.T) {
	_, err := NewMachine()
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = NewMachine(func(o *Options) {
		o.Model = model.NewScriptedModel("m")
		o.MaxIterations = 1
	})
	var cfgErr *model.InvalidConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "max_iterations", cfgErr.Field)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestRun_PlainAnswer(t *testing.T) {
	llm := model.NewScriptedModel("m").ReplyText("4")

	st, err := newMachine(t, llm).Run(context.Background(), initial())
	require.NoError(t, err)

	assert.Equal(t, 1, st.Iterations)
	assert.Empty(t, st.ToolCalls)
	assert.Equal(t, EndAnswer, st.Ended)
	assert.Equal(t, "4", st.FinalText())
	require.Len(t, st.Messages, 3)
	assert.Equal(t, core.RoleSystem, st.Messages[0].Role)
	assert.Equal(t, core.RoleHuman, st.Messages[1].Role)
}

func TestRun_ToolCallsWithoutToolsEnd(t *testing.T) {
	llm := model.NewScriptedModel("m").ReplyToolCalls("", call("c1", "calc", map[string]any{"expr": "2+2"}))

	st, err := newMachine(t, llm).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, EndAnswer, st.Ended)
	assert.Empty(t, st.ToolCalls)
}

func TestRun_CalcTool(t *testing.T) {
	llm := model.NewScriptedModel("m").
		ReplyToolCalls("", call("c1", "calc", map[string]any{"expr": "2+2"})).
		ReplyText("4")

	calc := calcTool(func(_ *tool.Invocation, args map[string]any) (any, error) {
		assert.Equal(t, "2+2", args["expr"])
		return 4, nil
	})

	st, err := newMachine(t, llm, func(o *Options) { o.Tools = tool.NewSet(calc) }).Run(context.Background(), initial())
	require.NoError(t, err)

	assert.Equal(t, 3, st.Iterations)
	assert.Equal(t, "4", st.FinalText())
	require.Len(t, st.ToolCalls, 1)
	assert.Equal(t, ToolCallRecord{ID: "c1", Tool: "calc", Input: map[string]any{"expr": "2+2"}, Output: 4}, st.ToolCalls[0])

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "calc", reqs[0].Tools[0].Name)

	result := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, core.RoleTool, result.Role)
	assert.Equal(t, "c1", result.ToolCallID)
	assert.Equal(t, "4", result.Text())
}

func TestRun_ToolFailuresBecomeResults(t *testing.T) {
	tests := []struct {
		name     string
		callName string
		fn       tool.Executor
		content  string
	}{
		{
			name:     "executor error",
			callName: "calc",
			fn: func(*tool.Invocation, map[string]any) (any, error) {
				return nil, errors.New("division by zero")
			},
			content: "Error: division by zero",
		},
		{
			name:     "panic",
			callName: "calc",
			fn: func(*tool.Invocation, map[string]any) (any, error) {
				panic("boom")
			},
			content: "Error: panic recovered: boom",
		},
		{
			name:     "unknown tool",
			callName: "nope",
			fn: func(*tool.Invocation, map[string]any) (any, error) {
				return "unused", nil
			},
			content: `Error: unknown tool "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := model.NewScriptedModel("m").
				ReplyToolCalls("", call("c1", tt.callName, map[string]any{"expr": "1/0"})).
				ReplyText("The calculation failed.")

			st, err := newMachine(t, llm, func(o *Options) { o.Tools = tool.NewSet(calcTool(tt.fn)) }).Run(context.Background(), initial())
			require.NoError(t, err)

			assert.Equal(t, EndAnswer, st.Ended)
			assert.Equal(t, "The calculation failed.", st.FinalText())
			require.Len(t, st.ToolCalls, 1)
			assert.Equal(t, tt.callName, st.ToolCalls[0].Tool)
			assert.Nil(t, st.ToolCalls[0].Output)
			assert.NotEmpty(t, st.ToolCalls[0].Error)

			result := llm.Requests()[1].Messages
			assert.Equal(t, tt.content, result[len(result)-1].Text())
		})
	}
}

func TestRun_OneResultPerCallInOrder(t *testing.T) {
	llm := model.NewScriptedModel("m").
		ReplyToolCalls("", call("a", "calc", map[string]any{"expr": "1"}), call("b", "calc", map[string]any{"expr": "2"}), call("", "calc", map[string]any{"expr": "3"})).
		ReplyText("done")

	calc := calcTool(func(_ *tool.Invocation, args map[string]any) (any, error) { return args["expr"], nil })

	st, err := newMachine(t, llm, func(o *Options) { o.Tools = tool.NewSet(calc) }).Run(context.Background(), initial())
	require.NoError(t, err)

	assistant := st.Messages[2]
	require.Len(t, assistant.ToolCalls, 3)
	assert.NotEmpty(t, assistant.ToolCalls[2].ID)

	results := st.Messages[3:6]
	for i, msg := range results {
		assert.Equal(t, core.RoleTool, msg.Role)
		assert.Equal(t, assistant.ToolCalls[i].ID, msg.ToolCallID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, []string{results[0].Text(), results[1].Text(), results[2].Text()})
	assert.Equal(t, core.RoleAssistant, st.Messages[6].Role)
}

func TestRun_StepBudget(t *testing.T) {
	llm := model.NewScriptedModel("m")
	for range 10 {
		llm.ReplyToolCalls("thinking", call("", "calc", map[string]any{"expr": "1"}))
	}
	calc := calcTool(func(*tool.Invocation, map[string]any) (any, error) { return 1, nil })

	st, err := newMachine(t, llm, func(o *Options) {
		o.Tools = tool.NewSet(calc)
		o.MaxIterations = 5
	}).Run(context.Background(), initial())
	require.NoError(t, err)

	assert.Equal(t, 5, st.Iterations)
	assert.Equal(t, EndMaxIterations, st.Ended)
	assert.Equal(t, 3, llm.Calls())
	assert.Len(t, st.ToolCalls, 2)
	assert.Equal(t, "thinking", st.FinalText())
}

func TestRun_RetriesExhausted(t *testing.T) {
	llm := model.NewScriptedModel("m").
		Fail(errors.New("503 first")).
		Fail(errors.New("503 second")).
		Fail(errors.New("503 last"))

	rec := &stream.Recorder{}
	st, err := newMachine(t, llm, func(o *Options) {
		o.Retry = retry.New(2, noSleep)
		o.Emitter = rec
	}).Run(context.Background(), initial())

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Contains(t, err.Error(), "503 last")
	assert.Equal(t, 1, st.Iterations)
	assert.Empty(t, st.ToolCalls)

	notices := rec.Filter(stream.KindError)
	require.Len(t, notices, 2)
	for i, e := range notices {
		assert.True(t, e.Recoverable)
		assert.False(t, e.Terminal)
		assert.Equal(t, i+1, e.Attempt)
	}
}

func TestRun_RetryRecovers(t *testing.T) {
	llm := model.NewScriptedModel("m").Fail(errors.New("timeout")).ReplyText("ok")

	var notices []retry.Notice
	st, err := newMachine(t, llm, func(o *Options) {
		o.Retry = retry.New(3, noSleep, func(c *retry.Controller) {
			c.OnRetry = func(_ context.Context, n retry.Notice) { notices = append(notices, n) }
		})
	}).Run(context.Background(), initial())
	require.NoError(t, err)

	assert.Equal(t, "ok", st.FinalText())
	require.Len(t, notices, 1)
	assert.EqualError(t, notices[0].Err, "timeout")
}

func TestRun_Truncated(t *testing.T) {
	llm := model.NewScriptedModel("m").Reply(model.Response{
		Message:      core.NewAssistantMessage("partial"),
		FinishReason: model.FinishLength,
		Truncated:    true,
	})

	st, err := newMachine(t, llm, func(o *Options) {
		o.Config.MaxOutputTokens = 256
	}).Run(context.Background(), initial())

	var trunc *TruncationError
	require.ErrorAs(t, err, &trunc)
	assert.Equal(t, 256, trunc.MaxOutputTokens)
	assert.Contains(t, err.Error(), "256")
	assert.Equal(t, 1, st.Iterations)
}

func TestRun_UsageAccumulates(t *testing.T) {
	llm := model.NewScriptedModel("m").
		Reply(model.Response{
			Message: core.NewAssistantMessage("", call("c1", "calc", map[string]any{"expr": "1"})),
			Usage:   model.TokenUsage{InputTokens: 10, OutputTokens: 2},
		}).
		Reply(model.Response{
			Message: core.NewAssistantMessage("1"),
			Usage:   model.TokenUsage{InputTokens: 15, OutputTokens: 1},
		})
	calc := calcTool(func(*tool.Invocation, map[string]any) (any, error) { return 1, nil })

	st, err := newMachine(t, llm, func(o *Options) { o.Tools = tool.NewSet(calc) }).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, model.TokenUsage{InputTokens: 25, OutputTokens: 3}, st.Usage)
}

type textOnlyModel struct{ *model.ScriptedModel }

func (textOnlyModel) SupportsImages() bool { return false }

func TestRun_DropsImagesForTextOnlyModels(t *testing.T) {
	llm := textOnlyModel{model.NewScriptedModel("m").ReplyText("a cat")}
	human := core.NewHumanMessage("what is this?", core.ImagePart{Data: "aGVsbG8=", MimeType: "image/png"})

	st, err := newMachine(t, llm).Run(context.Background(), NewRunState("", human))
	require.NoError(t, err)

	sent := llm.Requests()[0].Messages
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Images())
	assert.Equal(t, "what is this?", sent[0].Text())
	assert.Len(t, st.Messages[0].Images(), 1)
}

func TestRun_StreamEvents(t *testing.T) {
	llm := model.NewScriptedModel("m").
		ReplyToolCalls("", call("c1", "calc", map[string]any{"expr": "2+2"})).
		ReplyText("it is 4")
	calc := calcTool(func(*tool.Invocation, map[string]any) (any, error) { return 4, nil })

	rec := &stream.Recorder{}
	_, err := newMachine(t, llm, func(o *Options) {
		o.Tools = tool.NewSet(calc)
		o.Emitter = rec
		o.RunID = "run-1"
	}).Run(context.Background(), initial())
	require.NoError(t, err)

	assert.Equal(t, []stream.Kind{
		stream.KindIterationStart, stream.KindLLMStart, stream.KindLLMComplete, stream.KindIterationComplete,
		stream.KindIterationStart, stream.KindToolStart, stream.KindToolComplete, stream.KindIterationComplete,
		stream.KindIterationStart, stream.KindLLMStart,
		stream.KindToken, stream.KindToken, stream.KindToken,
		stream.KindLLMComplete, stream.KindIterationComplete,
	}, rec.Kinds())

	events := rec.Events()
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "run-1", e.RunID)
	}

	start, complete := rec.Filter(stream.KindToolStart)[0], rec.Filter(stream.KindToolComplete)[0]
	assert.NotEmpty(t, start.CorrelationID)
	assert.Equal(t, start.CorrelationID, complete.CorrelationID)
	assert.Equal(t, map[string]any{"expr": "2+2"}, start.Input)
	assert.Equal(t, "4", complete.Output)

	tokens := rec.Filter(stream.KindToken)
	final := rec.Filter(stream.KindLLMComplete)[1]
	for _, tok := range tokens {
		assert.Equal(t, final.MessageID, tok.MessageID)
	}
	assert.Equal(t, "it is 4", final.Text)
	require.NotNil(t, final.Usage)
}

func TestRun_StreamRetryStartsNewMessage(t *testing.T) {
	llm := model.NewScriptedModel("m").
		FailAfter("it is", errors.New("connection reset")).
		ReplyText("it is 4")

	rec := &stream.Recorder{}
	st, err := newMachine(t, llm, func(o *Options) {
		o.Retry = retry.New(2, noSleep)
		o.Emitter = rec
	}).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, "it is 4", st.FinalText())

	assert.Equal(t, []stream.Kind{
		stream.KindIterationStart,
		stream.KindLLMStart, stream.KindToken, stream.KindToken,
		stream.KindError,
		stream.KindLLMStart, stream.KindToken, stream.KindToken, stream.KindToken,
		stream.KindLLMComplete, stream.KindIterationComplete,
	}, rec.Kinds())

	starts := rec.Filter(stream.KindLLMStart)
	require.Len(t, starts, 2)
	assert.NotEqual(t, starts[0].MessageID, starts[1].MessageID)
	assert.Equal(t, 1, starts[0].Attempt)
	assert.Equal(t, 2, starts[1].Attempt)

	final := rec.Filter(stream.KindLLMComplete)[0]
	assert.Equal(t, starts[1].MessageID, final.MessageID)

	var text string
	for _, tok := range rec.Filter(stream.KindToken) {
		if tok.MessageID == final.MessageID {
			assert.Equal(t, 2, tok.Attempt)
			text += tok.Text
		} else {
			assert.Equal(t, starts[0].MessageID, tok.MessageID)
		}
	}
	assert.Equal(t, "it is 4", text)
}

func TestRun_EmitterErrorsIgnored(t *testing.T) {
	llm := model.NewScriptedModel("m").ReplyText("fine")
	failing := stream.Func(func(context.Context, stream.Event) error { return errors.New("client gone") })

	st, err := newMachine(t, llm, func(o *Options) { o.Emitter = failing }).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, "fine", st.FinalText())
}
