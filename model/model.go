package model

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/agentloop/core"
)

// Finish reasons reported in Response.FinishReason.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ChunkKind distinguishes streamed answer text from reasoning text.
type ChunkKind string

const (
	ChunkText     ChunkKind = "text"
	ChunkThinking ChunkKind = "thinking"
)

// Chunk is an incremental piece of a streamed generation.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// Request captures the normalized model input produced by the state machine.
type Request struct {
	Messages []core.Message
	Tools    []ToolDefinition

	// Stream asks the backend to stream. OnChunk is invoked synchronously for
	// every delta and must be set when Stream is true.
	Stream  bool
	OnChunk func(Chunk)
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int { return u.InputTokens + u.OutputTokens }

// Add returns the element-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
	}
}

// Response is the complete result of one generation call.
type Response struct {
	ID           string
	Message      core.Message // Role is always RoleAssistant
	FinishReason string
	Usage        TokenUsage

	// Truncated is set when output stopped at the configured token cap.
	Truncated bool
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// Model is the minimal interface required by the state machine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// SupportsStreaming reports whether Request.Stream is honoured.
	SupportsStreaming() bool

	// SupportsImages reports whether image parts are forwarded to the provider.
	SupportsImages() bool

	// Info returns information about the model implementation.
	Info() Info
}

// CallID returns id, or a generated one when the provider omitted it.
func CallID(id string) string {
	if id == "" {
		return core.NewID()
	}
	return id
}

// DecodeArguments parses a JSON object of tool arguments. Empty input yields
// an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// EncodeArguments renders tool arguments as a JSON object string.
func EncodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
