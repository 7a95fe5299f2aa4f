package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string, creds ...string) *FunctionTool {
	return NewFunctionTool(name, name+" tool", map[string]any{"type": "object"}, func(inv *Invocation, _ map[string]any) (any, error) {
		return inv.Credentials(), nil
	}).WithCredentials(creds...)
}

func newRegistry(t *testing.T, tools ...Tool) *StaticRegistry {
	t.Helper()
	r, err := NewStaticRegistry(tools...)
	require.NoError(t, err)
	return r
}

func TestResolve_UnknownToolIsWarning(t *testing.T) {
	r := NewResolver(newRegistry(t, echoTool("search")))
	set, warnings := r.Resolve(context.Background(), []Reference{{Name: "search"}, {Name: "nope"}}, nil, nil)

	assert.Equal(t, []string{"search"}, set.Names())
	assert.Equal(t, []Warning{{Tool: "nope", Reason: "unknown tool"}}, warnings)
}

func TestResolve_CredentialPrecedence(t *testing.T) {
	r := NewResolver(newRegistry(t, echoTool("crm", "crm_token")))
	agent := map[string]string{"crm_token": "agent-value", "unrelated": "leak"}

	set, warnings := r.Resolve(context.Background(), []Reference{{
		Name:        "crm",
		Credentials: map[string]string{"crm_token": "explicit-value", "extra": "x"},
	}}, nil, agent)
	require.Empty(t, warnings)

	h, ok := set.Get("crm")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"crm_token": "explicit-value", "extra": "x"}, h.Credentials)

	set, _ = r.Resolve(context.Background(), []Reference{{Name: "crm"}}, nil, agent)
	h, _ = set.Get("crm")
	assert.Equal(t, map[string]string{"crm_token": "agent-value"}, h.Credentials)
}

func TestResolve_InheritsAgentCredentials(t *testing.T) {
	r := NewResolver(newRegistry(t, echoTool("search")))
	exec := func(*Invocation, map[string]any) (any, error) { return "ok", nil }
	agent := map[string]string{"A": "x", "B": "y"}

	set, warnings := r.Resolve(context.Background(),
		[]Reference{{Name: "search", Credentials: map[string]string{"B": "explicit"}}},
		[]CustomSpec{{Name: "lookup", Parameters: map[string]any{"type": "object"}, Execute: exec, Credentials: map[string]string{"A": "own"}}},
		agent,
	)
	require.Empty(t, warnings)

	search, _ := set.Get("search")
	assert.Equal(t, map[string]string{"A": "x", "B": "explicit"}, search.Credentials)

	lookup, _ := set.Get("lookup")
	assert.Equal(t, map[string]string{"A": "own", "B": "y"}, lookup.Credentials)

	assert.Equal(t, map[string]string{"A": "x", "B": "y"}, agent)
}

func TestResolve_MissingCredential(t *testing.T) {
	r := NewResolver(newRegistry(t, echoTool("crm", "crm_token"), echoTool("clock")))
	set, warnings := r.Resolve(context.Background(), []Reference{{Name: "crm"}, {Name: "clock"}}, nil, map[string]string{"crm_token": ""})

	assert.Equal(t, []string{"clock"}, set.Names())
	require.Len(t, warnings, 1)
	assert.Equal(t, "crm", warnings[0].Tool)
	assert.Contains(t, warnings[0].Reason, "crm_token")
}

func TestResolve_DependenciesTransitive(t *testing.T) {
	reg := newRegistry(t, echoTool("a"), echoTool("b"), echoTool("c"), echoTool("d"))
	reg.SetDependencies("a", "b")
	reg.SetDependencies("b", "c", "a")
	reg.SetDependencies("d", "c")

	r := NewResolver(reg)
	set, warnings := r.Resolve(context.Background(), []Reference{{Name: "a"}, {Name: "d"}, {Name: "c", Config: map[string]any{"k": 1}}}, nil, nil)

	assert.Empty(t, warnings)
	assert.Equal(t, []string{"a", "b", "c", "d"}, set.Names())

	c, _ := set.Get("c")
	assert.Equal(t, map[string]any{"k": 1}, c.Config)
}

func TestResolve_DuplicatesAndCustom(t *testing.T) {
	r := NewResolver(newRegistry(t, echoTool("search")))
	exec := func(*Invocation, map[string]any) (any, error) { return "ok", nil }

	set, warnings := r.Resolve(context.Background(),
		[]Reference{{Name: "search"}, {Name: "search"}, {Name: ""}},
		[]CustomSpec{
			{Name: "lookup", Description: "Ad hoc", Parameters: map[string]any{"type": "object"}, Execute: exec, Credentials: map[string]string{"k": "v"}},
			{Name: "search", Parameters: map[string]any{}, Execute: exec},
			{Name: "no_schema", Execute: exec},
			{Name: "no_exec", Parameters: map[string]any{}},
			{Parameters: map[string]any{}, Execute: exec},
		},
		nil,
	)

	assert.Equal(t, []string{"search", "lookup"}, set.Names())
	reasons := map[string]string{}
	for _, w := range warnings {
		reasons[w.Tool] = w.Reason
	}
	assert.Len(t, warnings, 6)
	assert.Equal(t, "custom tool without parameter schema", reasons["no_schema"])
	assert.Equal(t, "custom tool without executor", reasons["no_exec"])

	lookup, _ := set.Get("lookup")
	assert.Equal(t, map[string]string{"k": "v"}, lookup.Credentials)
	_, isFunc := lookup.Tool.(*FunctionTool)
	assert.True(t, isFunc)
	assert.Equal(t, "search: duplicate tool reference", warnings[0].String())
}

func TestResolve_NilRegistry(t *testing.T) {
	set, warnings := NewResolver(nil).Resolve(context.Background(), []Reference{{Name: "x"}}, nil, nil)
	assert.Zero(t, set.Len())
	assert.Len(t, warnings, 1)
}
