// Package stream defines the ordered lifecycle events of a run and the
// emitters that receive them.
//
// Emission is synchronous: the producer waits for Emit to return before it
// proceeds, so sinks observe events exactly in production order.
package stream

import (
	"time"

	"github.com/hupe1980/agentloop/model"
)

// Kind tags a stream event.
type Kind string

const (
	KindStart             Kind = "start"
	KindLLMStart          Kind = "llm_start"
	KindToken             Kind = "token"
	KindThink             Kind = "think"
	KindLLMComplete       Kind = "llm_complete"
	KindToolStart         Kind = "tool_start"
	KindToolComplete      Kind = "tool_complete"
	KindIterationStart    Kind = "iteration_start"
	KindIterationComplete Kind = "iteration_complete"
	KindError             Kind = "error"
	KindComplete          Kind = "complete"
)

// Event is one lifecycle notification. Fields irrelevant to a Kind are zero.
//
// tool_start and tool_complete of one call share CorrelationID. Every model
// call attempt opens with its own llm_start and MessageID; its token and think
// events carry that id and the attempt number. llm_complete repeats the id of
// the attempt that succeeded, so deltas of failed attempts can be discarded.
type Event struct {
	Kind  Kind      `json:"kind"`
	RunID string    `json:"run_id,omitempty"`
	Seq   int       `json:"seq"`
	Time  time.Time `json:"time"`

	Iteration     int    `json:"iteration,omitempty"`
	MessageID     string `json:"message_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Text carries token/think deltas, the llm_complete message text and the
	// complete event's final response.
	Text  string `json:"text,omitempty"`
	Model string `json:"model,omitempty"`

	Tool       string         `json:"tool,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	Output     string         `json:"output,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`

	Usage *model.TokenUsage `json:"usage,omitempty"`

	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
	Terminal    bool   `json:"terminal,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
}

// IsTerminal reports whether e ends a run's stream.
func (e Event) IsTerminal() bool {
	return e.Kind == KindComplete || (e.Kind == KindError && e.Terminal)
}
