// Package llm defines the model-backend contract the agent loop drives and
// the provider adapters that satisfy it.
package llm

import (
	"context"
	"fmt"

	"github.com/kestrelworks/switchboard/internal/domain"
)

// RoleTool marks a message carrying tool results back to the model.
// User/assistant/system roles come from the domain package.
const RoleTool = "tool"

// Message is one entry in the model-facing conversation.
// An assistant message may carry tool-call requests; a tool message
// carries the results for previously requested calls.
type Message struct {
	Role        string
	Content     string
	ToolCalls   []domain.ToolCall
	ToolResults []domain.ToolResult
}

// ToolDefinition describes a capability the model may invoke.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema string // JSON Schema, "" when the tool accepts anything
}

// Request is one model round: the ordered message list plus the tool schema.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature *float64
}

// Response is the model's answer to one round. Non-empty ToolCalls means
// the model wants a tool round; otherwise Content is the final answer.
type Response struct {
	Content    string
	ToolCalls  []domain.ToolCall
	StopReason string
	Usage      Usage
}

// Usage tracks token consumption for one round.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// BackendError wraps a model-backend failure. It is a distinct error kind
// from tool failures so the agent loop can tell the two apart.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("llm backend %s: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Client is the opaque request/response capability the loop talks to.
type Client interface {
	// Complete runs one model round.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name (e.g. "openai", "anthropic").
	Name() string
}
