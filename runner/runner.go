package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/flow"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/media"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/provider"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
)

// Input is one run request.
type Input struct {
	Message      string            `json:"message"`
	Images       []core.ImageInput `json:"images,omitempty"`
	SystemPrompt string            `json:"system_prompt,omitempty"`
	Model        model.Config      `json:"model"`
	Tools        []tool.Reference  `json:"tools,omitempty"`

	// MaxIterations bounds the number of steps. Zero selects the runner default.
	MaxIterations int               `json:"max_iterations,omitempty"`
	Credentials   map[string]string `json:"credentials,omitempty"`

	CustomTools []tool.CustomSpec `json:"-"`
	Emitter     stream.Emitter    `json:"-"`
	Hooks       flow.Hooks        `json:"-"`
}

// Output is the uniform result of a run. Error is empty on success.
type Output struct {
	RunID      string                `json:"run_id"`
	Response   string                `json:"response"`
	ToolCalls  []flow.ToolCallRecord `json:"tool_calls"`
	Iterations int                   `json:"iterations"`
	Error      string                `json:"error"`
	Success    bool                  `json:"success"`
	Structured any                   `json:"structured,omitempty"`
	Usage      model.TokenUsage      `json:"usage"`
	Warnings   []tool.Warning        `json:"warnings,omitempty"`
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	// Models selects backends by provider prefix.
	Models *model.Registry

	// Tools resolves tool references. Nil means only custom tools are available.
	Tools tool.Registry

	// Media converts image attachments.
	Media *media.Normalizer

	// MaxIterations is used when Input.MaxIterations is zero.
	MaxIterations int

	// RetryOptions customize the per-run retry controller (delays, sleep).
	RetryOptions []func(c *retry.Controller)

	Logger logging.Logger
}

// Runner executes runs. Public methods are safe for concurrent use.
type Runner struct {
	models        *model.Registry
	tools         tool.Registry
	media         *media.Normalizer
	maxIterations int
	retryOptions  []func(c *retry.Controller)
	logger        logging.Logger
}

// New constructs a Runner with optional overrides.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxIterations: flow.DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)
	if opts.Models == nil {
		opts.Models = provider.NewRegistry()
	}
	if opts.Media == nil {
		opts.Media = media.New(func(o *media.Options) { o.Logger = logger })
	}

	return &Runner{
		models:        opts.Models,
		tools:         opts.Tools,
		media:         opts.Media,
		maxIterations: opts.MaxIterations,
		retryOptions:  opts.RetryOptions,
		logger:        logger,
	}
}

// Run executes one run to completion. It never returns an error; failures
// are reported through Output.Error and Output.Success.
func (r *Runner) Run(ctx context.Context, in Input) (out Output) {
	runID := core.NewID()
	logger := logging.With(r.logger, "run_id", runID)
	start := time.Now()

	var emitter stream.Emitter
	if in.Emitter != nil {
		emitter = stream.NewSequencer(in.Emitter, runID)
	}
	emit := func(e stream.Event) {
		if emitter == nil {
			return
		}
		if err := emitter.Emit(ctx, e); err != nil {
			logger.Warn("runner.emit.error", "kind", string(e.Kind), "error", err.Error())
		}
	}

	out = Output{RunID: runID, ToolCalls: []flow.ToolCallRecord{}}
	st := flow.RunState{}

	fail := func(err error) Output {
		out.Success = false
		out.Error = err.Error()
		out.Iterations = st.Iterations
		out.Usage = st.Usage
		if st.ToolCalls != nil {
			out.ToolCalls = st.ToolCalls
		}
		if out.Response == "" {
			out.Response = st.FinalText()
		}

		logger.Error("runner.run.failed",
			"error", out.Error,
			"iterations", out.Iterations,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		emit(stream.Event{
			Kind:        stream.KindError,
			Iteration:   out.Iterations,
			Error:       out.Error,
			Recoverable: true,
			Terminal:    true,
		})
		return out
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("runner.run.panic", "recover", fmt.Sprint(rec), "stack", string(debug.Stack()))
			out = fail(fmt.Errorf("internal error: %v", rec))
		}
	}()

	emit(stream.Event{Kind: stream.KindStart, Model: in.Model.Identifier})
	logger.Info("runner.run.start", "model", in.Model.Identifier, "tools", len(in.Tools), "custom_tools", len(in.CustomTools), "images", len(in.Images))

	maxIterations := in.MaxIterations
	if maxIterations == 0 {
		maxIterations = r.maxIterations
	}
	if maxIterations < flow.MinMaxIterations {
		return fail(&model.InvalidConfigError{Field: "max_iterations", Reason: fmt.Sprintf("must be at least %d", flow.MinMaxIterations)})
	}

	llm, err := r.models.New(in.Model, in.Credentials)
	if err != nil {
		return fail(err)
	}

	tools, warnings := tool.NewResolver(r.tools, func(o *tool.ResolverOptions) { o.Logger = logger }).
		Resolve(ctx, in.Tools, in.CustomTools, in.Credentials)
	out.Warnings = warnings

	images, err := r.media.Normalize(ctx, in.Images)
	if err != nil {
		return fail(err)
	}

	machine, err := flow.NewMachine(func(o *flow.Options) {
		o.Model = llm
		o.Config = in.Model
		o.Tools = tools
		o.Retry = retry.New(in.Model.MaxRetries, r.retryOptions...)
		o.Emitter = emitter
		o.Hooks = in.Hooks
		o.MaxIterations = maxIterations
		o.RunID = runID
		o.Logger = r.logger
	})
	if err != nil {
		return fail(err)
	}

	st, err = machine.Run(ctx, flow.NewRunState(in.SystemPrompt, core.NewHumanMessage(in.Message, images...)))
	if err != nil {
		return fail(err)
	}

	out.Iterations = st.Iterations
	out.Usage = st.Usage
	if st.ToolCalls != nil {
		out.ToolCalls = st.ToolCalls
	}

	if st.Ended == flow.EndAnswer {
		formatted, err := flow.FormatResponse(st.Last, in.Model)
		out.Response = formatted.Text
		if err != nil {
			return fail(err)
		}
		out.Structured = formatted.Structured
	} else {
		out.Response = st.FinalText()
	}

	out.Success = true

	logger.Info("runner.run.complete",
		"iterations", out.Iterations,
		"tool_calls", len(out.ToolCalls),
		"warnings", len(out.Warnings),
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	usage := out.Usage
	emit(stream.Event{Kind: stream.KindComplete, Iteration: out.Iterations, Text: out.Response, Usage: &usage})

	return out
}
