package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionKey identifies one conversation on one connector. It is derived
// deterministically as "{connector}:{conversationId}" and is stable for the
// lifetime of the conversation.
type SessionKey string

// KeyFor derives the session key for a connector/conversation pair.
func KeyFor(connector, conversationID string) SessionKey {
	return SessionKey(connector + ":" + conversationID)
}

// Parts splits the key back into connector and conversation id.
// The conversation id may itself contain colons; only the first one splits.
func (k SessionKey) Parts() (connector, conversationID string) {
	s := string(k)
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

// Validate reports whether the key has the "{connector}:{conversation}"
// shape. A malformed key is a configuration error at the call site.
func (k SessionKey) Validate() error {
	connector, conversation := k.Parts()
	if connector == "" || conversation == "" {
		return fmt.Errorf("malformed session key %q", string(k))
	}
	return nil
}

func (k SessionKey) String() string { return string(k) }

// Roles used in conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one logical exchange unit within a session: a message, any tool
// activity that serviced it, and a timestamp.
type Turn struct {
	ID        string           `json:"id"`
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ToolCallRecord `json:"toolCalls,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// ToolCallRecord pairs a tool call with its single result. A call is only
// ever recorded together with its result, so a cancelled call leaves no
// partial entry behind.
type ToolCallRecord struct {
	Call   ToolCall   `json:"call"`
	Result ToolResult `json:"result"`
}
