package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
)

func TestParseIdentifier(t *testing.T) {
	p, n, err := ParseIdentifier("openrouter/anthropic/claude-3.5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "openrouter", p)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", n)

	p, n, err = ParseIdentifier(" OpenAI/gpt-4o ")
	require.NoError(t, err)
	assert.Equal(t, "openai", p)
	assert.Equal(t, "gpt-4o", n)

	for _, bad := range []string{"", "gpt-4o", "/gpt-4o", "openai/"} {
		_, _, err := ParseIdentifier(bad)
		assert.ErrorIs(t, err, ErrConfiguration, bad)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig("openai/gpt-4o")
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name  string
		mut   func(c *Config)
		field string
	}{
		{"temperature too high", func(c *Config) { c.Temperature = 2.1 }, "temperature"},
		{"temperature negative", func(c *Config) { c.Temperature = -0.1 }, "temperature"},
		{"negative tokens", func(c *Config) { c.MaxOutputTokens = -1 }, "max_output_tokens"},
		{"retries above limit", func(c *Config) { c.MaxRetries = 11 }, "max_retries"},
		{"retries negative", func(c *Config) { c.MaxRetries = -1 }, "max_retries"},
		{"bad identifier", func(c *Config) { c.Identifier = "gpt" }, "identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			tt.mut(&c)
			err := c.Validate()
			var ice *InvalidConfigError
			require.ErrorAs(t, err, &ice)
			assert.Equal(t, tt.field, ice.Field)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	edge := cfg
	edge.Temperature = 2
	edge.MaxRetries = 10
	assert.NoError(t, edge.Validate())
}

func TestConfigOutputTokens(t *testing.T) {
	assert.Equal(t, DefaultMaxOutputTokens, Config{}.OutputTokens())
	assert.Equal(t, 100, Config{MaxOutputTokens: 100}.OutputTokens())
}

func TestArguments(t *testing.T) {
	args, err := DecodeArguments(`{"expression":"2+2"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"expression": "2+2"}, args)

	args, err = DecodeArguments("")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = DecodeArguments("null")
	require.NoError(t, err)
	assert.NotNil(t, args)

	_, err = DecodeArguments("{oops")
	assert.Error(t, err)

	assert.Equal(t, "{}", EncodeArguments(nil))
	assert.JSONEq(t, `{"a":1}`, EncodeArguments(map[string]any{"a": 1}))
}

func TestCallID(t *testing.T) {
	assert.Equal(t, "call_1", CallID("call_1"))
	assert.NotEmpty(t, CallID(""))
}

func TestTokenUsage(t *testing.T) {
	u := TokenUsage{InputTokens: 3, OutputTokens: 4}.Add(TokenUsage{InputTokens: 1, OutputTokens: 1})
	assert.Equal(t, TokenUsage{InputTokens: 4, OutputTokens: 5}, u)
	assert.Equal(t, 9, u.Total())
}

func TestScriptedModel(t *testing.T) {
	m := NewScriptedModel("test").
		ReplyToolCalls("", core.ToolCallRequest{ID: "c1", Name: "calc", Arguments: map[string]any{"expression": "1+1"}}).
		ReplyText("the answer is 2").
		Fail(errors.New("boom"))

	ctx := context.Background()
	resp, err := m.Generate(ctx, Request{Messages: []core.Message{core.NewHumanMessage("hi")}})
	require.NoError(t, err)
	assert.True(t, resp.Message.HasToolCalls())
	assert.Equal(t, FinishToolCalls, resp.FinishReason)
	assert.NotEmpty(t, resp.ID)

	var chunks []string
	resp, err = m.Generate(ctx, Request{Stream: true, OnChunk: func(c Chunk) { chunks = append(chunks, c.Text) }})
	require.NoError(t, err)
	assert.Equal(t, "the answer is 2", resp.Message.Text())
	assert.Equal(t, []string{"the ", "answer ", "is ", "2"}, chunks)

	_, err = m.Generate(ctx, Request{})
	assert.EqualError(t, err, "boom")

	_, err = m.Generate(ctx, Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
	assert.Equal(t, 4, m.Calls())
	assert.Equal(t, "hi", m.Requests()[0].Messages[0].Text())
}

func TestScriptedModel_Cancelled(t *testing.T) {
	m := NewScriptedModel("test").ReplyText("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.Generate(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Calls())
}
