package flow

import (
	"maps"
	"slices"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// ToolCallRecord logs one executed tool call.
type ToolCallRecord struct {
	ID     string         `json:"id,omitempty"`
	Tool   string         `json:"tool"`
	Input  map[string]any `json:"input"`
	Output any            `json:"output"`
	Error  string         `json:"error,omitempty"`
}

// EndReason tells why a run left the loop.
type EndReason string

const (
	EndAnswer        EndReason = "answer"
	EndHookStop      EndReason = "hook_stop"
	EndMaxIterations EndReason = "max_iterations"
)

// RunState is the mutable state of one run. It is owned by a single run and
// never shared.
type RunState struct {
	Messages       []core.Message
	Iterations     int
	ToolCalls      []ToolCallRecord
	StopAfterTools bool
	Usage          model.TokenUsage

	// Last is the most recent model response, nil before the first turn.
	Last *model.Response

	// Ended is set once the loop has finished without error.
	Ended EndReason
}

// NewRunState builds the initial conversation: the system prompt (when
// non-empty) followed by the human message.
func NewRunState(systemPrompt string, human core.Message) RunState {
	var msgs []core.Message
	if systemPrompt != "" {
		msgs = append(msgs, core.NewSystemMessage(systemPrompt))
	}
	msgs = append(msgs, human)
	return RunState{Messages: msgs}
}

// FinalText returns the text of the latest assistant message.
func (s RunState) FinalText() string {
	if m, ok := core.LastAssistant(s.Messages); ok {
		return m.Text()
	}
	return ""
}

// Clone returns a copy that shares no slices or maps with s.
func (s RunState) Clone() RunState {
	s.Messages = core.CloneMessages(s.Messages)
	if s.ToolCalls != nil {
		calls := slices.Clone(s.ToolCalls)
		for i := range calls {
			calls[i].Input = maps.Clone(calls[i].Input)
		}
		s.ToolCalls = calls
	}
	return s
}
