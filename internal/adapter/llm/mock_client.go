package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/tools"
)

// MockClient is a deterministic LLMClient for MOCK mode and tests.
type MockClient struct {
	rules tools.RuleClassifier
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Ensure MockClient implements LLMClient interface.
var _ LLMClient = (*MockClient)(nil)

// Chat echoes the last user message.
func (m *MockClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var lastUserMessage string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			lastUserMessage = messages[i].Content
			break
		}
	}
	if lastUserMessage == "" {
		return "[MOCK] 你好，我是你的旅行助手。", nil
	}
	return fmt.Sprintf("[MOCK] 收到你的消息：%q。", truncate(lastUserMessage, 100)), nil
}

// ClassifyIntent applies the keyword rules.
func (m *MockClient) ClassifyIntent(ctx context.Context, in domain.IntentInput) (domain.IntentLabel, error) {
	return m.rules.ClassifyIntent(ctx, in)
}

// truncate shortens s to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen]) + "..."
}
