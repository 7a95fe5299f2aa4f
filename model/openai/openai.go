// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including streaming + function/tool calling). The
// same adapter serves OpenAI-compatible endpoints (OpenRouter, Groq, Ollama)
// through a custom base URL.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	JSONMode            bool

	// ProviderOrder is forwarded as provider.order (OpenRouter routing hint).
	ProviderOrder []string

	// Provider is reported by Info. Defaults to "openai".
	Provider string

	Streaming bool
	Images    bool

	// RequestOptions are passed to the client created by NewModel.
	RequestOptions []option.RequestOption
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(opts.RequestOptions...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         model.DefaultTemperature,
		MaxCompletionTokens: model.DefaultMaxOutputTokens,
		Provider:            "openai",
		Streaming:           true,
		Images:              true,
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req)

	var reqOpts []option.RequestOption
	if len(m.opts.ProviderOrder) > 0 {
		reqOpts = append(reqOpts, option.WithJSONSet("provider", map[string]any{"order": m.opts.ProviderOrder}))
	}

	if req.Stream && m.opts.Streaming {
		return m.generateStreaming(ctx, params, req.OnChunk, reqOpts)
	}

	completion, err := m.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s api error: %w", m.opts.Provider, err)
	}
	return toResponse(completion)
}

// generateStreaming accumulates streamed chunks, forwarding content deltas.
func (m *Model) generateStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	onChunk func(model.Chunk),
	reqOpts []option.RequestOption,
) (*model.Response, error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params, reqOpts...)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if onChunk == nil {
			continue
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content != "" {
				onChunk(model.Chunk{Kind: model.ChunkText, Text: ch.Delta.Content})
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%s streaming error: %w", m.opts.Provider, err)
	}
	return toResponse(&acc.ChatCompletion)
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages:            m.buildMessages(req.Messages),
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
	}
	if m.opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}
	if len(req.Tools) == 0 {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  openai.FunctionParameters(tdef.Parameters),
			},
		}
	}
	params.Tools = tools
	return params
}

// buildMessages converts the conversation into OpenAI chat messages. Tool
// results already follow their assistant turn in request order.
func (m *Model) buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Text()))
		case core.RoleHuman:
			out = append(out, m.userMessage(msg))
		case core.RoleAssistant:
			out = append(out, assistantMessage(msg))
		case core.RoleTool:
			out = append(out, openai.ToolMessage(msg.Text(), msg.ToolCallID))
		}
	}
	return out
}

func (m *Model) userMessage(msg core.Message) openai.ChatCompletionMessageParamUnion {
	images := msg.Images()
	if len(images) == 0 || !m.opts.Images {
		return openai.UserMessage(msg.Text())
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch v := p.(type) {
		case core.TextPart:
			parts = append(parts, openai.TextContentPart(v.Text))
		case core.ImagePart:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: v.DataURL(),
			}))
		}
	}
	return openai.UserMessage(parts)
}

func assistantMessage(msg core.Message) openai.ChatCompletionMessageParamUnion {
	if !msg.HasToolCalls() {
		return openai.AssistantMessage(msg.Text())
	}
	calls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		calls[i] = openai.ChatCompletionMessageToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: model.EncodeArguments(tc.Arguments),
			},
		}
	}
	param := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if text := msg.Text(); text != "" {
		param.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &param}
}

// toResponse normalizes the first choice of a completion.
func toResponse(c *openai.ChatCompletion) (*model.Response, error) {
	if len(c.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	ch0 := c.Choices[0]

	calls := make([]core.ToolCallRequest, 0, len(ch0.Message.ToolCalls))
	for _, tc := range ch0.Message.ToolCalls {
		args, err := model.DecodeArguments(tc.Function.Arguments)
		if err != nil {
			args = map[string]any{}
		}
		calls = append(calls, core.ToolCallRequest{
			ID:        model.CallID(tc.ID),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return &model.Response{
		ID:           c.ID,
		Message:      core.NewAssistantMessage(ch0.Message.Content, calls...),
		FinishReason: ch0.FinishReason,
		Usage: model.TokenUsage{
			InputTokens:  int(c.Usage.PromptTokens),
			OutputTokens: int(c.Usage.CompletionTokens),
		},
		Truncated: ch0.FinishReason == model.FinishLength,
	}, nil
}

// SupportsStreaming implements model.Model.
func (m *Model) SupportsStreaming() bool { return m.opts.Streaming }

// SupportsImages implements model.Model.
func (m *Model) SupportsImages() bool { return m.opts.Images }

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: m.opts.Provider}
}
