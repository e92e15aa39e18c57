// Package tool implements the callable-capability subsystem used by
// specialist stages: schema-described tools with validated arguments
// and uniform error handling.
package tool

import (
	"context"
	"fmt"
	"log/slog"
)

// Context carries per-invocation metadata into a tool call.
//
// SessionUserID is the authenticated caller of the submission; tools
// that enforce role scoping derive their effective identity from it,
// never from model-supplied arguments.
type Context struct {
	context.Context

	Logger        *slog.Logger
	ThreadID      string
	SessionUserID int64
}

// NewContext builds a tool context. A nil logger defaults to
// slog.Default().
func NewContext(ctx context.Context, logger *slog.Logger, threadID string, sessionUserID int64) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		Context:       ctx,
		Logger:        logger,
		ThreadID:      threadID,
		SessionUserID: sessionUserID,
	}
}

// Tool is a callable capability exposed to a specialist's model.
//
// Implementations should:
//   - Provide clear, descriptive names (snake_case) and descriptions
//   - Define a JSON schema for parameters
//   - Return errors rather than panic
//   - Be safe for concurrent use
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description is shown to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON-Schema-like map describing arguments.
	Parameters() map[string]any

	// Call executes the tool with parsed arguments. The returned value
	// must be JSON-serializable; it becomes the tool observation.
	Call(toolCtx *Context, args map[string]any) (any, error)
}

// Error codes for ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents a tool invocation failure. Specialist loops
// treat it as a non-fatal observation fed back to the model.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a ToolError with the given details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
