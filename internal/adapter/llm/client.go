package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// Config holds the settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Client talks to an OpenAI-compatible chat completion API.
type Client struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewClient creates a new model client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}
}

// Chat performs a chat completion.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: llmMessages,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty chat response")
	}

	c.logger.Debug("chat completion done",
		zap.Duration("latency", time.Since(start)),
		zap.Int("tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// ClassifyIntent asks the model for a strict JSON intent label.
func (c *Client) ClassifyIntent(ctx context.Context, in domain.IntentInput) (domain.IntentLabel, error) {
	prompt := fmt.Sprintf("用户输入: %s", in.Text)
	if in.PriorIntent != "" {
		prompt = fmt.Sprintf("上一轮意图: %s\n%s", in.PriorIntent, prompt)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   50,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "intent_classification",
				Strict: true,
				Schema: intentJSONSchema,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.IntentLabel{}, fmt.Errorf("intent request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.IntentLabel{}, errors.New("empty intent response")
	}
	return parseIntent(resp.Choices[0].Message.Content)
}

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// parseIntent decodes the model's JSON, tolerating a markdown fence.
func parseIntent(content string) (domain.IntentLabel, error) {
	content = strings.TrimSpace(content)
	if m := fencedJSON.FindStringSubmatch(content); len(m) > 1 {
		content = m[1]
	}

	var label domain.IntentLabel
	if err := json.Unmarshal([]byte(content), &label); err != nil {
		return domain.IntentLabel{}, fmt.Errorf("parse intent: %w", err)
	}
	if label.Label == "" {
		return domain.IntentLabel{}, errors.New("parse intent: empty label")
	}
	label.Label = strings.ToLower(strings.TrimSpace(label.Label))
	return label, nil
}

const intentSystemPrompt = `旅行助手意图分类器。根据用户输入判断意图：

general_chat: 闲聊、问候、与旅行无关
info_query: 询问目的地信息、天气、交通、景点介绍
trip_planning: 想要规划行程，或补充目的地、日期、天数、偏好
plan_modification: 修改已生成的行程

示例: "我想去北京玩3天" -> trip_planning
默认: general_chat`

var intentJSONSchema = &jsonSchema{
	Type: "object",
	Properties: map[string]*jsonSchema{
		"intent": {
			Type:        "string",
			Enum:        []string{"general_chat", "info_query", "trip_planning", "plan_modification"},
			Description: "The classified intent type",
		},
		"confidence": {
			Type:        "number",
			Description: "Confidence score between 0 and 1",
		},
	},
	Required:             []string{"intent", "confidence"},
	AdditionalProperties: false,
}

// jsonSchema implements json.Marshaler for the JSON Schema response format.
type jsonSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*jsonSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Description          string                 `json:"description,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	type alias jsonSchema
	return json.Marshal((*alias)(s))
}
