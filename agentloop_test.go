package agentloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/stream"
	"github.com/hupe1980/agentloop/tool"
	"github.com/hupe1980/agentloop/tool/builtin"
)

func withScripted(t *testing.T, llm *model.ScriptedModel) func(o *Options) {
	return func(o *Options) {
		require.NoError(t, o.Models.Register(model.ProviderSpec{
			Name: "scripted",
			Factory: func(model.Config, model.ProviderSpec, string) (model.Model, error) {
				return llm, nil
			},
		}))
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New()
	assert.Contains(t, a.Models().Names(), "openai")
	assert.Contains(t, a.Models().Names(), "anthropic")
	assert.Empty(t, a.Tools().Names())
}

func TestRun_WithRegisteredTool(t *testing.T) {
	llm := model.NewScriptedModel("test").
		ReplyToolCalls("", core.ToolCallRequest{ID: "c1", Name: builtin.CalcName, Arguments: map[string]any{"expression": "6*7"}}).
		ReplyText("42")

	a := New(withScripted(t, llm))
	require.NoError(t, a.RegisterTool(builtin.Calc()))

	out := a.Run(context.Background(), Input{
		Message: "What's 6*7?",
		Model:   model.DefaultConfig("scripted/test"),
		Tools:   []tool.Reference{{Name: builtin.CalcName}},
	})

	require.True(t, out.Success, out.Error)
	assert.Equal(t, "42", out.Response)
	assert.Equal(t, 3, out.Iterations)
	require.Len(t, out.ToolCalls, 1)
}

func TestInvoke_StreamsEventsThenOutput(t *testing.T) {
	llm := model.NewScriptedModel("test").ReplyText("hello there")
	a := New(withScripted(t, llm))

	rec := &stream.Recorder{}
	events, result := a.Invoke(context.Background(), Input{
		Message: "hi",
		Model:   model.DefaultConfig("scripted/test"),
		Emitter: rec,
	})

	var kinds []stream.Kind
	for e := range events {
		kinds = append(kinds, e.Kind)
	}
	out := <-result

	require.True(t, out.Success, out.Error)
	assert.Equal(t, stream.KindStart, kinds[0])
	assert.Equal(t, stream.KindComplete, kinds[len(kinds)-1])
	assert.Equal(t, kinds, rec.Kinds())
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tools:
  - name: calc
    description: arithmetic
    parameters:
      type: object
      properties:
        expression: {type: string}
  - name: crm_lookup
    description: needs an adapter
`), 0o600))

	a := New()
	unbound, err := a.LoadManifest(path, builtin.Executors())
	require.NoError(t, err)
	assert.Equal(t, []string{"crm_lookup"}, unbound)
	assert.Equal(t, []string{"calc"}, a.Tools().Names())
}
