package model

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// ErrScriptExhausted is returned by ScriptedModel once every scripted turn
// has been consumed.
var ErrScriptExhausted = errors.New("scripted model: no more responses")

type scriptStep struct {
	resp *Response
	err  error
}

// ScriptedModel is a lightweight in-memory Model useful for tests & examples.
// Each Generate call consumes the next scripted turn in order.
type ScriptedModel struct {
	mu        sync.Mutex
	info      Info
	steps     []scriptStep
	requests  []Request
	streaming bool
	images    bool
}

// NewScriptedModel constructs a ScriptedModel that supports streaming and images.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{
		info:      Info{Name: name, Provider: "scripted"},
		streaming: true,
		images:    true,
	}
}

// WithoutStreaming disables streaming support.
func (m *ScriptedModel) WithoutStreaming() *ScriptedModel {
	m.streaming = false
	return m
}

// ReplyText scripts a plain text answer.
func (m *ScriptedModel) ReplyText(text string) *ScriptedModel {
	return m.Reply(Response{Message: core.NewAssistantMessage(text), FinishReason: FinishStop})
}

// ReplyToolCalls scripts an assistant turn requesting the given tool calls.
func (m *ScriptedModel) ReplyToolCalls(text string, calls ...core.ToolCallRequest) *ScriptedModel {
	return m.Reply(Response{Message: core.NewAssistantMessage(text, calls...), FinishReason: FinishToolCalls})
}

// Reply scripts an arbitrary response.
func (m *ScriptedModel) Reply(resp Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp.Message.Role = core.RoleAssistant
	m.steps = append(m.steps, scriptStep{resp: &resp})
	return m
}

// FailAfter scripts a call that streams partial text and then fails.
func (m *ScriptedModel) FailAfter(partial string, err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptStep{resp: &Response{Message: core.NewAssistantMessage(partial)}, err: err})
	return m
}

// Fail scripts a failed call.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps = append(m.steps, scriptStep{err: err})
	return m
}

// Requests returns copies of the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := m.steps[0]
	m.steps = m.steps[1:]
	m.mu.Unlock()

	if step.resp != nil && req.Stream && req.OnChunk != nil {
		for _, w := range strings.SplitAfter(step.resp.Message.Text(), " ") {
			if w != "" {
				req.OnChunk(Chunk{Kind: ChunkText, Text: w})
			}
		}
	}

	if step.err != nil {
		return nil, step.err
	}

	resp := *step.resp
	resp.Message = resp.Message.Clone()
	if resp.ID == "" {
		resp.ID = core.NewID()
	}

	return &resp, nil
}

// SupportsStreaming implements Model.
func (m *ScriptedModel) SupportsStreaming() bool { return m.streaming }

// SupportsImages implements Model.
func (m *ScriptedModel) SupportsImages() bool { return m.images }

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }
