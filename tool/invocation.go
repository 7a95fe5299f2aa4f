package tool

import (
	"context"
	"maps"

	"github.com/hupe1980/agentloop/logging"
)

// Invocation is the per-call surface handed to a tool: the run context, the
// tool call id, the assembled credentials and configuration, and a logger.
type Invocation struct {
	ctx         context.Context
	callID      string
	credentials map[string]string
	config      map[string]any
	logger      logging.Logger
}

// NewInvocation constructs an invocation. Nil maps and logger are replaced
// with empty values.
func NewInvocation(ctx context.Context, callID string, credentials map[string]string, config map[string]any, logger logging.Logger) *Invocation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Invocation{
		ctx:         ctx,
		callID:      callID,
		credentials: credentials,
		config:      config,
		logger:      logging.OrNoOp(logger),
	}
}

// Context returns the context of the run.
func (i *Invocation) Context() context.Context { return i.ctx }

// CallID returns the id of the tool call being answered.
func (i *Invocation) CallID() string { return i.callID }

// Logger returns the logger associated with the tool invocation.
func (i *Invocation) Logger() logging.Logger { return i.logger }

// Credential returns the secret stored under credType.
func (i *Invocation) Credential(credType string) (string, bool) {
	v, ok := i.credentials[credType]
	return v, ok
}

// Credentials returns a copy of all credentials available to the tool.
func (i *Invocation) Credentials() map[string]string {
	return maps.Clone(i.credentials)
}

// Config returns the per-tool configuration value stored under key.
func (i *Invocation) Config(key string) (any, bool) {
	v, ok := i.config[key]
	return v, ok
}
