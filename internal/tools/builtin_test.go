package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

func newBuiltinRegistry(t *testing.T) *Registry {
	t.Helper()
	c, err := DefaultCatalog()
	require.NoError(t, err)
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, c, RuleClassifier{}))
	return r
}

func execute(t *testing.T, r *Registry, tool string, in any) *domain.ToolPayload {
	t.Helper()
	args, err := json.Marshal(in)
	require.NoError(t, err)
	raw, err := r.Execute(context.Background(), tool, args)
	require.NoError(t, err)
	kind, ok := domain.KindOf(tool)
	require.True(t, ok)
	p, err := domain.DecodePayload(kind, raw)
	require.NoError(t, err)
	return p
}

func TestBuiltins_KnownCity(t *testing.T) {
	r := newBuiltinRegistry(t)
	in := domain.EnrichInput{City: "厦门", Date: domain.MustParseDate("2026-01-20"), DayIndex: 0}

	attractions := execute(t, r, domain.ToolAttractionSearch, in)
	assert.Len(t, attractions.Attractions, attractionsPerDay)
	assert.Equal(t, "鼓浪屿", attractions.Attractions[0].Name)

	in.DayIndex = 1
	second := execute(t, r, domain.ToolAttractionSearch, in)
	assert.NotEqual(t, attractions.Attractions[0].Name, second.Attractions[0].Name, "days rotate through the catalog")

	hotels := execute(t, r, domain.ToolHotelSearch, in)
	require.NotEmpty(t, hotels.Hotels)
	assert.Positive(t, hotels.Hotels[0].EstimatedCost)

	weather := execute(t, r, domain.ToolWeatherLookup, in)
	require.NotNil(t, weather.Weather)
	assert.Equal(t, "2026-01-20", weather.Weather.Date.String())

	in.MealTypes = domain.MealTypes
	meals := execute(t, r, domain.ToolMealSuggestion, in)
	require.Len(t, meals.Meals, 3)
	assert.Equal(t, domain.MealBreakfast, meals.Meals[0].Type)
	assert.Equal(t, domain.MealDinner, meals.Meals[2].Type)
}

func TestBuiltins_PreferencesFirst(t *testing.T) {
	r := newBuiltinRegistry(t)
	in := domain.EnrichInput{City: "厦门", Date: domain.MustParseDate("2026-01-20"), Preferences: []string{"history"}}

	p := execute(t, r, domain.ToolAttractionSearch, in)
	require.NotEmpty(t, p.Attractions)
	assert.Equal(t, "history", p.Attractions[0].Category)
}

func TestBuiltins_UnknownCity(t *testing.T) {
	r := newBuiltinRegistry(t)
	in := domain.EnrichInput{City: "大理", Date: domain.MustParseDate("2026-03-01"), MealTypes: domain.MealTypes}

	p := execute(t, r, domain.ToolHotelSearch, in)
	require.Len(t, p.Hotels, 1)
	assert.Equal(t, "大理中心酒店", p.Hotels[0].Name)

	meals := execute(t, r, domain.ToolMealSuggestion, in)
	assert.Len(t, meals.Meals, 3)
}

func TestBuiltins_InvalidInput(t *testing.T) {
	r := newBuiltinRegistry(t)
	_, err := r.Execute(context.Background(), domain.ToolHotelSearch, json.RawMessage(`{"city":""}`))
	assert.Error(t, err)
	_, err = r.Execute(context.Background(), domain.ToolHotelSearch, json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestRuleClassifier(t *testing.T) {
	cases := []struct {
		text  string
		prior domain.Strategy
		want  string
	}{
		{"我想去北京玩3天", "", LabelTripPlanning},
		{"帮我规划厦门行程", "", LabelTripPlanning},
		{"北京今天天气怎么样", "", LabelInfoQuery},
		{"你好", "", LabelGeneralChat},
		{"把第二天改成去鼓浪屿", domain.StrategyTripPlanning, LabelPlanModification},
		{"", "", LabelGeneralChat},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			label, err := RuleClassifier{}.ClassifyIntent(context.Background(), domain.IntentInput{Text: tc.text, PriorIntent: tc.prior})
			require.NoError(t, err)
			assert.Equal(t, tc.want, label.Label)
		})
	}
}
