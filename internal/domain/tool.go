package domain

// ToolStatus tags the outcome of a tool invocation.
type ToolStatus string

const (
	ToolOK      ToolStatus = "ok"
	ToolError   ToolStatus = "error"
	ToolTimeout ToolStatus = "timeout"
)

// ToolCall is a single model-requested invocation of a named capability.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the typed outcome of exactly one ToolCall.
// Payload carries the capability's text output when Status is ok;
// Detail carries the error description otherwise.
type ToolResult struct {
	CallID string     `json:"callId"`
	Status ToolStatus `json:"status"`
	Payload string    `json:"payload,omitempty"`
	Detail  string    `json:"detail,omitempty"`
}

// OK reports whether the call succeeded.
func (r ToolResult) OK() bool { return r.Status == ToolOK }
