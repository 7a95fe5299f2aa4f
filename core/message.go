package core

import (
	"maps"
	"strings"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallRequest describes a model's request to invoke a tool.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Clone returns a copy whose argument map can be modified independently.
// Nested values are shared.
func (c ToolCallRequest) Clone() ToolCallRequest {
	c.Arguments = maps.Clone(c.Arguments)
	if c.Arguments == nil {
		c.Arguments = map[string]any{}
	}
	return c
}

// Message is one entry of a run's conversation.
type Message struct {
	Role       Role
	Parts      []Part
	ToolCalls  []ToolCallRequest
	ToolCallID string // Set when Role == RoleTool
	Name       string // Tool name when Role == RoleTool
}

// NewSystemMessage creates a system message holding a single text part.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// NewHumanMessage creates a human message with text followed by images.
func NewHumanMessage(text string, images ...ImagePart) Message {
	parts := make([]Part, 0, len(images)+1)
	if text != "" {
		parts = append(parts, TextPart{Text: text})
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	return Message{Role: RoleHuman, Parts: parts}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(text string, calls ...ToolCallRequest) Message {
	m := Message{Role: RoleAssistant, ToolCalls: calls}
	if text != "" {
		m.Parts = []Part{TextPart{Text: text}}
	}
	return m
}

// NewToolResultMessage creates the tool-result message answering callID.
func NewToolResultMessage(callID, toolName, content string) Message {
	return Message{
		Role:       RoleTool,
		Parts:      []Part{TextPart{Text: content}},
		ToolCallID: callID,
		Name:       toolName,
	}
}

// Text concatenates all text parts in order.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Images returns the image parts in order.
func (m Message) Images() []ImagePart {
	var images []ImagePart
	for _, p := range m.Parts {
		if ip, ok := p.(ImagePart); ok {
			images = append(images, ip)
		}
	}
	return images
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep enough copy for safe hand-off: part and tool call
// slices are copied and tool call argument maps are cloned.
func (m Message) Clone() Message {
	if m.Parts != nil {
		m.Parts = append([]Part(nil), m.Parts...)
	}
	if m.ToolCalls != nil {
		calls := make([]ToolCallRequest, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = c.Clone()
		}
		m.ToolCalls = calls
	}
	return m
}

// CloneMessages copies a message sequence.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// LastAssistant returns the most recent assistant message, if any.
func LastAssistant(msgs []Message) (Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleAssistant {
			return msgs[i], true
		}
	}
	return Message{}, false
}
