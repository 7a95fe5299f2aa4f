// Package builtin provides demonstration tools registered by the CLI: calc
// evaluates constant arithmetic expressions and clock reports the current
// time in a zone.
package builtin

import (
	"time"

	"github.com/hupe1980/agentloop/tool"
)

// Tools returns the built-in tools.
func Tools() []tool.Tool {
	return []tool.Tool{Calc(), Clock(time.Now)}
}

// Executors returns the built-in executors keyed by tool name, for binding
// manifest entries.
func Executors() map[string]tool.Executor {
	return map[string]tool.Executor{
		CalcName:  calc,
		ClockName: clockExecutor(time.Now),
	}
}
