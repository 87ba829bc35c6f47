// Package llm provides an abstraction over the language model used to label
// turns and write replies.
package llm

import (
	"context"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// Message is one entry of a chat prompt.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LLMClient defines the operations the trip agent needs from a model.
type LLMClient interface {
	// Chat returns the assistant reply for the conversation.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ClassifyIntent labels a user turn.
	ClassifyIntent(ctx context.Context, in domain.IntentInput) (domain.IntentLabel, error)
}

// Ensure Client implements LLMClient interface.
var _ LLMClient = (*Client)(nil)
