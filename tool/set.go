package tool

import (
	"context"

	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
)

// Bound is a resolved tool handle: the tool plus the credentials and
// configuration assembled for one run.
type Bound struct {
	Tool        Tool
	Credentials map[string]string
	Config      map[string]any
}

// Name returns the bound tool's name.
func (b *Bound) Name() string { return b.Tool.Name() }

// Definition returns the declaration exposed to the model.
func (b *Bound) Definition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        b.Tool.Name(),
		Description: b.Tool.Description(),
		Parameters:  b.Tool.Parameters(),
	}
}

// Call invokes the tool for callID with the bound credentials and config.
func (b *Bound) Call(ctx context.Context, callID string, args map[string]any, logger logging.Logger) (any, error) {
	inv := NewInvocation(ctx, callID, b.Credentials, b.Config, logger)
	return b.Tool.Call(inv, args)
}

// Set is the ordered collection of tool handles resolved for one run.
type Set struct {
	order  []*Bound
	byName map[string]*Bound
}

// NewSet creates a set from handles; later duplicates are ignored.
func NewSet(handles ...*Bound) *Set {
	s := &Set{byName: map[string]*Bound{}}
	for _, h := range handles {
		s.Add(h)
	}
	return s
}

// Add appends h unless a handle with the same name exists. It reports
// whether h was added.
func (s *Set) Add(h *Bound) bool {
	if s.byName == nil {
		s.byName = map[string]*Bound{}
	}
	name := h.Name()
	if _, dup := s.byName[name]; dup {
		return false
	}
	s.byName[name] = h
	s.order = append(s.order, h)
	return true
}

// Get returns the handle named name.
func (s *Set) Get(name string) (*Bound, bool) {
	if s == nil {
		return nil, false
	}
	h, ok := s.byName[name]
	return h, ok
}

// Len returns the number of handles.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns the handle names in resolution order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.order))
	for i, h := range s.order {
		names[i] = h.Name()
	}
	return names
}

// Definitions returns the model declarations in resolution order.
func (s *Set) Definitions() []model.ToolDefinition {
	if s == nil {
		return nil
	}
	defs := make([]model.ToolDefinition, len(s.order))
	for i, h := range s.order {
		defs[i] = h.Definition()
	}
	return defs
}
