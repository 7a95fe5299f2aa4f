// Agentloop runs tool-augmented reasoning loops against a configured model
// provider.
//
// Usage:
//
//	agentloop run [-stream] [-system <prompt>] [-image <url>]... <message>
//	agentloop serve          Accept runs over a websocket at /v1/runs
//	agentloop tools          List the registered tools
//
// Configuration is loaded from a YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one the built-in defaults apply.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/hupe1980/agentloop"
	"github.com/hupe1980/agentloop/internal/config"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model/provider"
	"github.com/hupe1980/agentloop/tool"
	"github.com/hupe1980/agentloop/tool/builtin"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand so that run can
// be driven from parallel tests without flag package globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command == "" && args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case command == "" && strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case command == "" && (args[i] == "-h" || args[i] == "-help" || args[i] == "--help"):
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command == "" {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
			cmdArgs = append(cmdArgs, args[i])
		}
	}

	switch command {
	case "run":
		return runOnce(ctx, stdout, stderr, configPath, cmdArgs)
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "tools":
		return runTools(stdout, stderr, configPath)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "agentloop - tool-augmented reasoning loop")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: agentloop [-config <path>] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run <message>   Execute one run and print the output as JSON")
	fmt.Fprintln(w, "      -stream           Write stream events to stderr as JSON lines")
	fmt.Fprintln(w, "      -system <prompt>  Override the configured system prompt")
	fmt.Fprintln(w, "      -image <src>      Attach an image (URL or data URI), repeatable")
	fmt.Fprintln(w, "  serve           Accept runs over a websocket at /v1/runs")
	fmt.Fprintln(w, "  tools           List the registered tools")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  "+strings.Join(config.DefaultSearchPaths(), ", "))
	return nil
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger logging.Logger
	loop   *agentloop.AgentLoop
}

// loadConfig finds and validates the configuration. Without an explicit
// path and without a discovered file the defaults are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg := config.Default()
		return cfg, "", cfg.Validate()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

func newApp(stderr io.Writer, configPath string) (*app, error) {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	lc, err := cfg.LoggerConfig(isTerminal(stderr))
	if err != nil {
		return nil, err
	}
	lc.Output = stderr
	logger := logging.NewLogger(lc)
	if path != "" {
		logger.Debug("config.loaded", "path", path)
	}

	models := provider.NewRegistry()
	if err := cfg.ApplyProviders(models); err != nil {
		return nil, err
	}

	tools, err := tool.NewStaticRegistry()
	if err != nil {
		return nil, err
	}

	loop := agentloop.New(func(o *agentloop.Options) {
		o.Models = models
		o.Tools = tools
		o.MaxIterations = cfg.MaxIterations
		o.RetryOptions = cfg.RetryOptions()
		o.Logger = logger
	})

	if cfg.Tools.Manifest != "" {
		unbound, err := loop.LoadManifest(cfg.Tools.Manifest, builtin.Executors())
		if err != nil {
			return nil, err
		}
		for _, name := range unbound {
			logger.Warn("tool.manifest.unbound", "tool", name)
		}
	} else if err := loop.RegisterTool(builtin.Tools()...); err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, loop: loop}, nil
}

// baseInput fills an input with the configured defaults.
func (a *app) baseInput() agentloop.Input {
	refs := make([]tool.Reference, 0, len(a.cfg.Tools.Enabled))
	for _, name := range a.cfg.Tools.Enabled {
		refs = append(refs, tool.Reference{Name: name})
	}
	return agentloop.Input{
		SystemPrompt:  a.cfg.SystemPrompt,
		Model:         a.cfg.Model,
		Tools:         refs,
		MaxIterations: a.cfg.MaxIterations,
		Credentials:   a.cfg.Credentials,
	}
}

func runTools(stdout, stderr io.Writer, configPath string) error {
	a, err := newApp(stderr, configPath)
	if err != nil {
		return err
	}
	reg := a.loop.Tools()
	for _, name := range reg.Names() {
		t, _ := reg.Resolve(name)
		fmt.Fprintf(stdout, "%-12s %s\n", name, t.Description())
	}
	return nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var errUsage = errors.New("usage: agentloop run [-stream] [-system <prompt>] [-image <src>]... <message>")
