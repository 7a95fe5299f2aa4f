package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
)

// Step budget limits.
const (
	DefaultMaxIterations = 10
	MinMaxIterations     = 2
)

// ErrNoModel is returned by NewMachine when Options.Model is nil.
var ErrNoModel = errors.New("flow: model is required")

// Options configures a Machine.
type Options struct {
	Model  model.Model
	Config model.Config

	// Tools is the resolved tool set of the run. Nil or empty means the run
	// always ends after its first model turn.
	Tools *tool.Set

	// Retry is the template controller for model calls. Nil builds one from
	// Config.MaxRetries with default delays.
	Retry *retry.Controller

	// Emitter receives lifecycle events. Nil disables events and streaming.
	Emitter stream.Emitter

	Hooks         Hooks
	MaxIterations int
	RunID         string
	Logger        logging.Logger
}

// Machine runs the MODEL_TURN / TOOL_TURN loop for one run.
type Machine struct {
	opts    Options
	emitter stream.Emitter
	logger  logging.Logger
}

// NewMachine validates the options and creates a Machine.
func NewMachine(optFns ...func(o *Options)) (*Machine, error) {
	opts := Options{MaxIterations: DefaultMaxIterations}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Model == nil {
		return nil, ErrNoModel
	}
	if opts.MaxIterations < MinMaxIterations {
		return nil, &model.InvalidConfigError{Field: "max_iterations", Reason: fmt.Sprintf("must be at least %d", MinMaxIterations)}
	}
	if opts.RunID == "" {
		opts.RunID = core.NewID()
	}
	if opts.Retry == nil {
		opts.Retry = retry.New(opts.Config.MaxRetries)
	}

	m := &Machine{
		opts:   opts,
		logger: logging.With(logging.OrNoOp(opts.Logger), "run_id", opts.RunID),
	}

	if opts.Emitter != nil {
		if seq, ok := opts.Emitter.(*stream.Sequencer); ok {
			m.emitter = seq
		} else {
			m.emitter = stream.NewSequencer(opts.Emitter, opts.RunID)
		}
	}

	return m, nil
}

// Run drives st until the model answers, a hook stops the run or the step
// budget is exhausted. The returned state is valid even when err is non-nil
// and holds everything accumulated so far.
func (m *Machine) Run(ctx context.Context, st RunState) (RunState, error) {
	start := time.Now()
	maxSteps := m.opts.MaxIterations

	m.logger.Info("flow.run.start",
		"model", m.opts.Model.Info().Name,
		"tools", m.opts.Tools.Len(),
		"max_iterations", maxSteps,
	)

	for {
		if st.Iterations >= maxSteps {
			st.Ended = EndMaxIterations
			break
		}

		// MODEL_TURN
		st.Iterations++
		m.emit(ctx, stream.Event{Kind: stream.KindIterationStart, Iteration: st.Iterations})
		if err := m.modelTurn(ctx, &st); err != nil {
			m.logger.Error("flow.run.failed", "iteration", st.Iterations, "error", err.Error())
			return st, err
		}
		m.emit(ctx, stream.Event{Kind: stream.KindIterationComplete, Iteration: st.Iterations})

		last := st.Messages[len(st.Messages)-1]
		if !last.HasToolCalls() || m.opts.Tools.Len() == 0 {
			st.Ended = EndAnswer
			break
		}
		if st.Iterations >= maxSteps {
			st.Ended = EndMaxIterations
			break
		}

		// TOOL_TURN
		st.Iterations++
		m.emit(ctx, stream.Event{Kind: stream.KindIterationStart, Iteration: st.Iterations})
		m.executeToolCalls(ctx, &st, last.ToolCalls)
		m.emit(ctx, stream.Event{Kind: stream.KindIterationComplete, Iteration: st.Iterations})

		if st.StopAfterTools {
			st.Ended = EndHookStop
			break
		}
	}

	m.logger.Info("flow.run.complete",
		"iterations", st.Iterations,
		"tool_calls", len(st.ToolCalls),
		"ended", string(st.Ended),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return st, nil
}

// modelTurn asks the model for the next assistant message and appends it.
func (m *Machine) modelTurn(ctx context.Context, st *RunState) error {
	llm := m.opts.Model
	iteration := st.Iterations
	streaming := m.emitter != nil && llm.SupportsStreaming()

	req := model.Request{
		Messages: st.Messages,
		Tools:    m.opts.Tools.Definitions(),
		Stream:   streaming,
	}
	if !llm.SupportsImages() {
		req.Messages = withoutImages(st.Messages)
	}

	// Each attempt gets its own llm_start and message id.
	var (
		msgID   string
		attempt int
	)

	start := time.Now()
	resp, err := retry.Do(ctx, m.retryController(iteration), func(ctx context.Context) (*model.Response, error) {
		attempt++
		msgID = core.NewID()
		m.emit(ctx, stream.Event{Kind: stream.KindLLMStart, Iteration: iteration, MessageID: msgID, Model: llm.Info().Name, Attempt: attempt})

		req := req
		if streaming {
			id, n := msgID, attempt
			req.OnChunk = func(c model.Chunk) {
				kind := stream.KindToken
				if c.Kind == model.ChunkThinking {
					kind = stream.KindThink
				}
				m.emit(ctx, stream.Event{Kind: kind, Iteration: iteration, MessageID: id, Text: c.Text, Attempt: n})
			}
		}

		resp, err := llm.Generate(ctx, req)
		if err == nil && resp == nil {
			err = errors.New("model returned no response")
		}
		return resp, err
	})
	if err != nil {
		return err
	}

	msg := resp.Message.Clone()
	msg.Role = core.RoleAssistant
	for i := range msg.ToolCalls {
		msg.ToolCalls[i].ID = model.CallID(msg.ToolCalls[i].ID)
		if msg.ToolCalls[i].Arguments == nil {
			msg.ToolCalls[i].Arguments = map[string]any{}
		}
	}
	resp.Message = msg

	st.Messages = append(st.Messages, msg)
	st.Usage = st.Usage.Add(resp.Usage)
	st.Last = resp

	m.logger.Info("flow.model.turn",
		"iteration", iteration,
		"finish_reason", resp.FinishReason,
		"tool_calls", len(msg.ToolCalls),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	usage := resp.Usage
	m.emit(ctx, stream.Event{
		Kind:       stream.KindLLMComplete,
		Iteration:  iteration,
		MessageID:  msgID,
		Attempt:    attempt,
		Model:      llm.Info().Name,
		Text:       msg.Text(),
		Usage:      &usage,
		DurationMS: time.Since(start).Milliseconds(),
	})

	if resp.Truncated {
		return &TruncationError{MaxOutputTokens: m.opts.Config.OutputTokens()}
	}
	return nil
}

// retryController copies the template controller and reports every retried
// failure as a recoverable error event.
func (m *Machine) retryController(iteration int) *retry.Controller {
	c := *m.opts.Retry
	next := c.OnRetry
	c.OnRetry = func(ctx context.Context, n retry.Notice) {
		m.logger.Warn("model.call.retry",
			"iteration", iteration,
			"attempt", n.Attempt,
			"max_retries", n.MaxRetries,
			"delay_ms", n.Delay.Milliseconds(),
			"error", n.Err.Error(),
		)
		m.emit(ctx, stream.Event{
			Kind:        stream.KindError,
			Iteration:   iteration,
			Error:       n.Err.Error(),
			Recoverable: true,
			Attempt:     n.Attempt,
		})
		if next != nil {
			next(ctx, n)
		}
	}
	return &c
}

// emit delivers e synchronously. Emitter failures never change the run.
func (m *Machine) emit(ctx context.Context, e stream.Event) {
	if m.emitter == nil {
		return
	}
	if err := m.emitter.Emit(ctx, e); err != nil {
		m.logger.Warn("flow.emit.error", "kind", string(e.Kind), "error", err.Error())
	}
}

func withoutImages(msgs []core.Message) []core.Message {
	out := make([]core.Message, len(msgs))
	for i, msg := range msgs {
		if len(msg.Images()) == 0 {
			out[i] = msg
			continue
		}
		parts := make([]core.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			if _, ok := p.(core.ImagePart); !ok {
				parts = append(parts, p)
			}
		}
		msg.Parts = parts
		out[i] = msg
	}
	return out
}
