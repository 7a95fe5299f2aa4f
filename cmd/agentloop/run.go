package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/stream"
)

type runFlags struct {
	stream  bool
	system  *string
	images  []string
	message string
}

func parseRunFlags(args []string) (runFlags, error) {
	var f runFlags
	var words []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-stream":
			f.stream = true
		case args[i] == "-system" && i+1 < len(args):
			s := args[i+1]
			f.system = &s
			i++
		case args[i] == "-image" && i+1 < len(args):
			f.images = append(f.images, args[i+1])
			i++
		case strings.HasPrefix(args[i], "-") && len(words) == 0:
			return f, fmt.Errorf("unknown run flag: %s", args[i])
		default:
			words = append(words, args[i])
		}
	}

	f.message = strings.Join(words, " ")
	if f.message == "" {
		return f, errUsage
	}
	return f, nil
}

// runOnce handles "agentloop run": one run, Output JSON on stdout.
func runOnce(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	flags, err := parseRunFlags(args)
	if err != nil {
		return err
	}

	a, err := newApp(stderr, configPath)
	if err != nil {
		return err
	}

	in := a.baseInput()
	in.Message = flags.message
	if flags.system != nil {
		in.SystemPrompt = *flags.system
	}
	for _, src := range flags.images {
		in.Images = append(in.Images, core.ImageInput{Data: src})
	}
	if flags.stream {
		in.Emitter = jsonLines(stderr)
	}

	out := a.loop.Run(ctx, in)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("run failed: %s", out.Error)
	}
	return nil
}

// jsonLines writes every event as one JSON line.
func jsonLines(w io.Writer) stream.Emitter {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return stream.Func(func(_ context.Context, e stream.Event) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(e)
	})
}
