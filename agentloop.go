// Package agentloop provides a high-level façade over the runner: a
// provider registry, a tool registry and a logger wired together so that
// applications can execute tool-augmented reasoning runs with a few lines:
//  1. Create an AgentLoop via New() (optionally overriding defaults)
//  2. Register tools (RegisterTool, LoadManifest)
//  3. Execute runs synchronously (Run) or with an event channel (Invoke)
//
// Defaults: every built-in model provider, an empty tool registry and a
// no-op logger.
package agentloop

import (
	"context"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/model/provider"
	"github.com/hupe1980/agentloop/retry"
	"github.com/hupe1980/agentloop/runner"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
)

// Input and Output re-export the run invocation contract.
type (
	Input  = runner.Input
	Output = runner.Output
)

// Options configures the AgentLoop instance.
type Options struct {
	// Models selects model backends by provider prefix.
	Models *model.Registry

	// Tools is the registry references are resolved against.
	Tools *tool.StaticRegistry

	// MaxIterations is applied to inputs that leave it zero.
	MaxIterations int

	// RetryOptions customize per-run model call backoff.
	RetryOptions []func(c *retry.Controller)

	// EventBufferSize sets the channel buffer used by Invoke.
	EventBufferSize int

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the runner and registries.
type AgentLoop struct {
	opts   Options
	runner *runner.Runner
}

// New creates a new AgentLoop with optional overrides.
func New(optFns ...func(o *Options)) *AgentLoop {
	opts := Options{
		Models:          provider.NewRegistry(),
		EventBufferSize: 64,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tools == nil {
		opts.Tools, _ = tool.NewStaticRegistry()
	}

	r := runner.New(func(o *runner.Options) {
		o.Models = opts.Models
		o.Tools = opts.Tools
		o.RetryOptions = opts.RetryOptions
		o.Logger = opts.Logger
		if opts.MaxIterations > 0 {
			o.MaxIterations = opts.MaxIterations
		}
	})

	return &AgentLoop{opts: opts, runner: r}
}

// Models returns the provider registry.
func (a *AgentLoop) Models() *model.Registry { return a.opts.Models }

// Tools returns the tool registry.
func (a *AgentLoop) Tools() *tool.StaticRegistry { return a.opts.Tools }

// RegisterTool adds tools to the registry.
func (a *AgentLoop) RegisterTool(tools ...tool.Tool) error { return a.opts.Tools.Register(tools...) }

// LoadManifest reads a static tool manifest and binds its entries to
// executors. It returns the names of entries without an executor.
func (a *AgentLoop) LoadManifest(path string, executors map[string]tool.Executor) ([]string, error) {
	m, err := tool.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Bind(a.opts.Tools, executors)
}

// Run executes one run synchronously. It never fails; see Output.Error.
func (a *AgentLoop) Run(ctx context.Context, in Input) Output {
	return a.runner.Run(ctx, in)
}

// Invoke starts a run asynchronously. Events are delivered in order on the
// first channel, which is closed when the run ends; the Output follows on
// the second. Any emitter already set on in also receives every event.
func (a *AgentLoop) Invoke(ctx context.Context, in Input) (<-chan stream.Event, <-chan Output) {
	events := make(chan stream.Event, a.opts.EventBufferSize)
	result := make(chan Output, 1)

	next := in.Emitter
	in.Emitter = stream.Func(func(ctx context.Context, e stream.Event) error {
		if next != nil {
			if err := next.Emit(ctx, e); err != nil {
				return err
			}
		}
		select {
		case events <- e:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	go func() {
		out := a.runner.Run(ctx, in)
		close(events)
		result <- out
		close(result)
	}()

	return events, result
}
