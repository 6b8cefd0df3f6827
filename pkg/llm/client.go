// Package llm provides a narrow transport abstraction over chat-completion
// services with function calling. It performs no validation and no business
// logic; callers own the conversation and everything that happens to a
// proposed tool call.
package llm

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// Role identifies who produced a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn in a conversation. Messages are append-only; a slice of
// them forms the conversation sent on each call.
type Message struct {
	Role    Role
	Content string

	// ToolName and ToolArgs carry a structured tool call on assistant turns.
	// On tool turns, ToolName names the tool whose result Content holds.
	ToolName string
	ToolArgs string
}

// ToolDeclaration describes one callable capability offered to the model.
// Declarations are constructed once at process start and never mutated.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ToolCall is a structured request from the model to invoke a declared tool.
type ToolCall struct {
	Name      string
	Arguments string // raw JSON, parsed and schema-checked by the caller
}

// Reply is the model's answer to one completion call: either free text or a
// tool call, never both.
type Reply struct {
	Text     string
	ToolCall *ToolCall
}

// Error kinds. Callers distinguish these because user-facing failure text
// differs by kind; timeouts collapse into ErrTransport.
var (
	ErrAuth        = errors.New("llm: credential rejected")
	ErrRateLimited = errors.New("llm: rate limited")
	ErrTransport   = errors.New("llm: transport failure")
)

// Client sends a conversation to a chat-completion service.
// Implementations are stateless per call and perform no retries.
type Client interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDeclaration) (Reply, error)
}
