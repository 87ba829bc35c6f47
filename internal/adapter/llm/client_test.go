package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
}

func TestClient_Chat(t *testing.T) {
	srv := chatServer(t, "厦门一月气候温和。")
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "test-model"}, zap.NewNop())
	out, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "厦门冷吗"}})
	require.NoError(t, err)
	assert.Equal(t, "厦门一月气候温和。", out)
}

func TestClient_ClassifyIntent(t *testing.T) {
	srv := chatServer(t, "```json\n{\"intent\":\"Trip_Planning\",\"confidence\":0.92}\n```")
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "test-model"}, zap.NewNop())
	label, err := c.ClassifyIntent(context.Background(), domain.IntentInput{Text: "我想去北京玩3天"})
	require.NoError(t, err)
	assert.Equal(t, "trip_planning", label.Label)
	assert.InDelta(t, 0.92, label.Confidence, 1e-9)
}

func TestParseIntent_Invalid(t *testing.T) {
	_, err := parseIntent("not json")
	assert.Error(t, err)
	_, err = parseIntent(`{"confidence":1}`)
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	out, err := m.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "你好"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "[MOCK]")
	assert.Contains(t, out, "你好")

	label, err := m.ClassifyIntent(context.Background(), domain.IntentInput{Text: "我想去北京玩3天"})
	require.NoError(t, err)
	assert.Equal(t, "trip_planning", label.Label)
}
