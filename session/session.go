// Package session holds the ordered collection of chat sessions and their
// messages, backed by an injected persistence collaborator.
package session

import (
	"time"

	"github.com/finlens/copilot/evidence"
	"github.com/finlens/copilot/guardrail"
	"github.com/finlens/copilot/rag"
)

// ContextType tags a session's context descriptor.
type ContextType string

const (
	ContextFiling ContextType = "filing"
	ContextCustom ContextType = "custom"
)

// Context scopes a session to a filing or marks it free-form.
type Context struct {
	Type        ContextType `json:"type"`
	ReferenceID string      `json:"referenceId,omitempty"`
}

// Role of a message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus tracks an assistant message through its turn. It moves
// monotonically through pending → streaming → {ready|blocked|error}; only an
// explicit retry resets it to pending.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusStreaming MessageStatus = "streaming"
	StatusReady     MessageStatus = "ready"
	StatusBlocked   MessageStatus = "blocked"
	StatusError     MessageStatus = "error"
)

// Terminal reports whether the status ends a turn.
func (s MessageStatus) Terminal() bool {
	return s == StatusReady || s == StatusBlocked || s == StatusError
}

// MessageMeta is the tagged record attached to every message. Fields beyond
// Status are populated once the turn reaches a terminal or near-terminal
// state.
type MessageMeta struct {
	Status        MessageStatus             `json:"status"`
	Retryable     bool                      `json:"retryable,omitempty"`
	ErrorMessage  string                    `json:"errorMessage,omitempty"`
	Question      string                    `json:"question,omitempty"`
	UserMessageID string                    `json:"userMessageId,omitempty"`
	TurnID        string                    `json:"turnId,omitempty"`
	Model         string                    `json:"model,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
	Citations     map[string][]rag.Citation `json:"citations,omitempty"`
	JudgeDecision string                    `json:"judgeDecision,omitempty"`
	JudgeReason   string                    `json:"judgeReason,omitempty"`
	TraceID       string                    `json:"traceId,omitempty"`
}

// Message is one chat message. Content is mutated in place while a turn
// streams.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
	Meta      MessageMeta `json:"meta"`
}

// NewMessage instantiates and returns a new message.
func NewMessage(id string, role Role, content string, meta MessageMeta) *Message {
	return &Message{
		ID:        id,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMicro(),
		Meta:      meta,
	}
}

// Session is one chat session.
type Session struct {
	ID                string              `json:"id"`
	Title             string              `json:"title,omitempty"`
	CreationTimestamp int64               `json:"creation_timestamp"`
	UpdateTimestamp   int64               `json:"update_timestamp"`
	Context           *Context            `json:"context,omitempty"`
	Messages          []*Message          `json:"messages"`
	Evidence          evidence.State      `json:"evidence"`
	Telemetry         guardrail.Telemetry `json:"telemetry"`
}

// NewSession instantiates and returns a new session.
func NewSession(id string, context *Context) *Session {
	now := time.Now().UnixMicro()
	return &Session{
		ID:                id,
		CreationTimestamp: now,
		UpdateTimestamp:   now,
		Context:           context,
	}
}

// message returns the message with the given id, or nil.
func (s *Session) message(messageID string) *Message {
	for _, message := range s.Messages {
		if message.ID == messageID {
			return message
		}
	}
	return nil
}
