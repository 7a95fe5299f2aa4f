// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// jsonModeInstruction is appended to the system prompt in JSON mode; the
// Messages API has no native JSON response format.
const jsonModeInstruction = "Respond only with a single valid JSON object and no surrounding prose."

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	JSONMode    bool
	APIKey      string

	Streaming bool

	// RequestOptions are passed to the client created by NewModel.
	RequestOptions []option.RequestOption
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	clientOpts := append([]option.RequestOption(nil), opts.RequestOptions...)
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaudeSonnet4_5,
		Temperature: model.DefaultTemperature,
		MaxTokens:   model.DefaultMaxOutputTokens,
		Streaming:   true,
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if system := m.systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}

	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	if req.Stream && m.opts.Streaming {
		return m.generateStreaming(ctx, params, req.OnChunk)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	return toResponse(resp), nil
}

// generateStreaming accumulates the event stream into a Message, forwarding
// text and thinking deltas.
func (m *Model) generateStreaming(
	ctx context.Context,
	params anthropic.MessageNewParams,
	onChunk func(model.Chunk),
) (*model.Response, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic stream accumulate: %w", err)
		}
		if onChunk == nil {
			continue
		}
		if ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" {
					onChunk(model.Chunk{Kind: model.ChunkText, Text: delta.Text})
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking != "" {
					onChunk(model.Chunk{Kind: model.ChunkThinking, Text: delta.Thinking})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("anthropic streaming error: %w", err)
	}
	return toResponse(&msg), nil
}

// toResponse builds the normalized response from text and tool_use blocks.
func toResponse(msg *anthropic.Message) *model.Response {
	var (
		text  string
		calls []core.ToolCallRequest
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			args, err := model.DecodeArguments(string(tu.Input))
			if err != nil {
				args = map[string]any{}
			}
			calls = append(calls, core.ToolCallRequest{
				ID:        model.CallID(tu.ID),
				Name:      tu.Name,
				Arguments: args,
			})
		}
	}

	finish := model.FinishStop
	switch msg.StopReason {
	case anthropic.StopReasonToolUse:
		finish = model.FinishToolCalls
	case anthropic.StopReasonMaxTokens:
		finish = model.FinishLength
	case "", anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
	default:
		finish = string(msg.StopReason)
	}

	return &model.Response{
		ID:           msg.ID,
		Message:      core.NewAssistantMessage(text, calls...),
		FinishReason: finish,
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		Truncated: msg.StopReason == anthropic.StopReasonMaxTokens,
	}
}

// systemBlocks collects system message text, plus the JSON instruction in JSON mode.
func (m *Model) systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, msg := range msgs {
		if msg.Role != core.RoleSystem {
			continue
		}
		if text := msg.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	if m.opts.JSONMode {
		blocks = append(blocks, anthropic.TextBlockParam{Text: jsonModeInstruction})
	}
	return blocks
}

// buildMessages converts the conversation to Anthropic messages. Consecutive
// tool results are grouped into one user message in request order.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleTool:
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Text(), false))
			continue
		case core.RoleSystem:
			continue
		}
		flush()

		switch msg.Role {
		case core.RoleHuman:
			if content := userContent(msg); len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		case core.RoleAssistant:
			if content := assistantContent(msg); len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		}
	}
	flush()
	return out
}

func userContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ImagePart:
			content = append(content, anthropic.NewImageBlockBase64(part.MimeType, part.Data))
		}
	}
	return content
}

func assistantContent(msg core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	if text := msg.Text(); text != "" {
		content = append(content, anthropic.NewTextBlock(text))
	}
	for _, tc := range msg.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		content = append(content, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
	}
	return content
}

// buildTools converts tool definitions to Anthropic tool params.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if props, ok := t.Parameters["properties"]; ok {
			schema.Properties = props
		}
		schema.Required = requiredFields(t.Parameters["required"])

		param := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if t.Description != "" {
			param.Description = anthropic.String(t.Description)
		}
		out[i] = anthropic.ToolUnionParam{OfTool: &param}
	}
	return out
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// SupportsStreaming implements model.Model.
func (m *Model) SupportsStreaming() bool { return m.opts.Streaming }

// SupportsImages implements model.Model.
func (m *Model) SupportsImages() bool { return true }

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic"}
}
