package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// IntentClassifier labels a user turn.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, in domain.IntentInput) (domain.IntentLabel, error)
}

// IntentExecutor adapts a classifier to the capability wire format.
func IntentExecutor(c IntentClassifier) ExecutorFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in domain.IntentInput
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		label, err := c.ClassifyIntent(ctx, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(label)
	}
}

// Intent labels understood by the router.
const (
	LabelGeneralChat      = "general_chat"
	LabelInfoQuery        = "info_query"
	LabelTripPlanning     = "trip_planning"
	LabelPlanModification = "plan_modification"
)

var (
	modificationWords = []string{"修改", "调整", "换一个", "改成", "改到", "change the plan", "modify"}
	tripWords         = []string{"旅游", "旅行", "行程", "规划", "攻略", "游玩", "玩", "去", "出发", "自由行", "几日游", "日游", "trip", "travel", "itinerary", "visit"}
	questionWords     = []string{"天气", "怎么", "多少", "哪里", "什么", "吗", "?", "？", "how", "what", "where", "weather"}
)

// RuleClassifier is a keyword classifier used when no model is configured.
type RuleClassifier struct{}

// ClassifyIntent implements IntentClassifier.
func (RuleClassifier) ClassifyIntent(_ context.Context, in domain.IntentInput) (domain.IntentLabel, error) {
	text := strings.ToLower(strings.TrimSpace(in.Text))
	switch {
	case text == "":
		return domain.IntentLabel{Label: LabelGeneralChat, Confidence: 1}, nil
	case in.PriorIntent == domain.StrategyTripPlanning && containsAny(text, modificationWords):
		return domain.IntentLabel{Label: LabelPlanModification, Confidence: 0.8}, nil
	case containsAny(text, tripWords):
		return domain.IntentLabel{Label: LabelTripPlanning, Confidence: 0.8}, nil
	case containsAny(text, questionWords):
		return domain.IntentLabel{Label: LabelInfoQuery, Confidence: 0.6}, nil
	}
	return domain.IntentLabel{Label: LabelGeneralChat, Confidence: 0.5}, nil
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
