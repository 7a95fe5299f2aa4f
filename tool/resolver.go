package tool

import (
	"context"
	"fmt"
	"maps"

	"github.com/hupe1980/agentloop/logging"
)

// Reference names a registered tool with optional per-tool credentials and
// configuration.
type Reference struct {
	Name        string            `json:"name" yaml:"name"`
	Credentials map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Config      map[string]any    `json:"config,omitempty" yaml:"config,omitempty"`
}

// CustomSpec is an ad-hoc tool definition supplied with a run.
type CustomSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     Executor
	Credentials map[string]string
}

// Warning is a recoverable resolution problem; the tool is omitted and the
// run continues.
type Warning struct {
	Tool   string `json:"tool"`
	Reason string `json:"reason"`
}

func (w Warning) String() string { return fmt.Sprintf("%s: %s", w.Tool, w.Reason) }

// Resolver turns references and ad-hoc definitions into a tool Set.
type Resolver struct {
	registry Registry
	logger   logging.Logger
}

// ResolverOptions configure a Resolver.
type ResolverOptions struct {
	Logger logging.Logger
}

// NewResolver creates a resolver backed by registry (which may be nil).
func NewResolver(registry Registry, optFns ...func(o *ResolverOptions)) *Resolver {
	opts := ResolverOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{registry: registry, logger: logging.OrNoOp(opts.Logger)}
}

// Resolve builds the run's tool Set.
//
// References are resolved in order, each followed by its transitive
// dependencies. A handle receives the agent credentials filtered to its
// declared requirements (the whole agent map when it declares none),
// overlaid by the reference's explicit credentials. Ad-hoc definitions are
// treated as tools without declared requirements.
// Unknown tools, unsatisfied requirements, invalid ad-hoc definitions and
// name collisions produce warnings; the first handle for a name wins.
func (r *Resolver) Resolve(ctx context.Context, refs []Reference, custom []CustomSpec, agentCreds map[string]string) (*Set, []Warning) {
	set := NewSet()
	var warnings []Warning

	warn := func(name, reason string) {
		warnings = append(warnings, Warning{Tool: name, Reason: reason})
		r.logger.Warn("tool.resolve.skipped", "tool", name, "reason", reason)
	}

	explicit := make(map[string]Reference, len(refs))
	for _, ref := range refs {
		if _, ok := explicit[ref.Name]; !ok {
			explicit[ref.Name] = ref
		}
	}

	visited := map[string]bool{}
	var resolve func(ref Reference, isDependency bool)
	resolve = func(ref Reference, isDependency bool) {
		if visited[ref.Name] {
			return
		}
		visited[ref.Name] = true

		if ctx.Err() != nil {
			return
		}

		t, ok := r.lookup(ref.Name)
		if !ok {
			warn(ref.Name, "unknown tool")
			return
		}

		creds, missing := assembleCredentials(RequiredCredentials(t), agentCreds, ref.Credentials)
		if missing != "" {
			warn(ref.Name, fmt.Sprintf("missing credential %q", missing))
			return
		}

		set.Add(&Bound{Tool: t, Credentials: creds, Config: maps.Clone(ref.Config)})
		r.logger.Debug("tool.resolve.bound", "tool", ref.Name, "dependency", isDependency)

		for _, dep := range r.dependencies(ref.Name) {
			depRef, ok := explicit[dep]
			if !ok {
				depRef = Reference{Name: dep}
			}
			resolve(depRef, true)
		}
	}

	seen := map[string]bool{}
	for _, ref := range refs {
		if ref.Name == "" {
			warn("", "tool reference without name")
			continue
		}
		if seen[ref.Name] {
			warn(ref.Name, "duplicate tool reference")
			continue
		}
		seen[ref.Name] = true
		resolve(ref, false)
	}

	for _, spec := range custom {
		if reason := validateCustom(spec); reason != "" {
			warn(spec.Name, reason)
			continue
		}
		ft := NewFunctionTool(spec.Name, spec.Description, spec.Parameters, spec.Execute)
		creds, _ := assembleCredentials(nil, agentCreds, spec.Credentials)
		if !set.Add(&Bound{Tool: ft, Credentials: creds}) {
			warn(spec.Name, "name collides with an already resolved tool")
		}
	}

	return set, warnings
}

func (r *Resolver) lookup(name string) (Tool, bool) {
	if r.registry == nil {
		return nil, false
	}
	return r.registry.Resolve(name)
}

func (r *Resolver) dependencies(name string) []string {
	if dp, ok := r.registry.(DependencyProvider); ok {
		return dp.Dependencies(name)
	}
	return nil
}

// assembleCredentials filters agent credentials to required, overlays the
// explicit ones and reports the first requirement left unsatisfied. A tool
// without requirements inherits every agent credential.
func assembleCredentials(required []string, agent, explicit map[string]string) (map[string]string, string) {
	creds := make(map[string]string, len(required)+len(explicit))
	if len(required) == 0 {
		for k, v := range agent {
			if v != "" {
				creds[k] = v
			}
		}
	}
	for _, k := range required {
		if v := agent[k]; v != "" {
			creds[k] = v
		}
	}
	for k, v := range explicit {
		creds[k] = v
	}
	for _, k := range required {
		if creds[k] == "" {
			return nil, k
		}
	}
	return creds, ""
}

func validateCustom(spec CustomSpec) string {
	switch {
	case spec.Name == "":
		return "custom tool without name"
	case spec.Parameters == nil:
		return "custom tool without parameter schema"
	case spec.Execute == nil:
		return "custom tool without executor"
	}
	return ""
}
