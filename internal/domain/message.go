// Package domain defines the core types shared by the bus, the session
// store, and the agent loop.
package domain

import "time"

// InboundMessage is a conversational event received from a connector.
// It is immutable once published on the bus.
type InboundMessage struct {
	ID             string         `json:"id,omitempty"`
	Connector      string         `json:"connector"`
	SenderID       string         `json:"senderId"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	Media          []string       `json:"media,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// SessionKey returns the key of the session this message belongs to.
func (m InboundMessage) SessionKey() SessionKey {
	return KeyFor(m.Connector, m.ConversationID)
}

// OutboundMessage is a reply to be delivered by a connector.
// It is immutable once published on the bus.
type OutboundMessage struct {
	Connector      string         `json:"connector"`
	ConversationID string         `json:"conversationId"`
	Content        string         `json:"content"`
	ReplyTo        string         `json:"replyTo,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
