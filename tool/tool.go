// Package tool implements the tool calling subsystem: the uniform Tool
// capability interface, schema validated function tools, the static
// registry and manifest, and the resolver that turns a run's tool
// references into an invocable Set.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentloop/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeExecution   = "EXECUTION_ERROR"
	CodeUnknownTool = "UNKNOWN_TOOL"
	CodePanic       = "PANIC"
)

// Tool defines the interface every capability exposes to the reasoning loop.
//
// Tools are stateless across runs; per-run credentials and configuration
// arrive through the Invocation. Implementations should return *ToolError
// for failures they want to categorize themselves.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the model to help it decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(inv *Invocation, args map[string]any) (any, error)
}

// CredentialRequirer is implemented by tools that need secrets. The returned
// credential types must all be present for the tool to be invocable.
type CredentialRequirer interface {
	Credentials() []string
}

// RequiredCredentials returns the credential types t declares, if any.
func RequiredCredentials(t Tool) []string {
	if cr, ok := t.(CredentialRequirer); ok {
		return cr.Credentials()
	}
	return nil
}

// Executor is the function signature backing FunctionTool and manifest entries.
type Executor func(inv *Invocation, args map[string]any) (any, error)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes Details when it is an error.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
