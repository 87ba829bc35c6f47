package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/adapter/llm"
	"github.com/xiaot623/gogo/tripagent/internal/cache"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
	"github.com/xiaot623/gogo/tripagent/internal/itinerary"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
	"github.com/xiaot623/gogo/tripagent/internal/tools"
	"github.com/xiaot623/gogo/tripagent/tests/helpers"
)

// testNow is a Monday shortly before the trips planned in these tests.
var testNow = time.Date(2026, 1, 12, 9, 0, 0, 0, time.Local)

const xiamenTrip = "2026年1月20日去厦门玩两天"

type lookupFunc func(in domain.EnrichInput) (any, error)

func lookup(fn lookupFunc) tools.ExecutorFunc {
	return func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in domain.EnrichInput
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		out, err := fn(in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}
}

// scenarioRegistry prices day 1 and day 2 of a trip so that the two days cost
// attractions 60+100, hotels 200+250 and meals 160+170.
func scenarioRegistry() *tools.Registry {
	attractionCost := []int64{60, 100}
	hotelCost := []int64{200, 250}
	mealCost := [][3]int64{{30, 50, 80}, {30, 60, 80}}

	reg := tools.NewRegistry()
	reg.MustRegister(domain.ToolIntentClassifier, tools.IntentExecutor(tools.RuleClassifier{}))
	reg.MustRegister(domain.ToolAttractionSearch, lookup(func(in domain.EnrichInput) (any, error) {
		return map[string]any{"attractions": []domain.Attraction{
			{Name: fmt.Sprintf("景点%d", in.DayIndex+1), TicketPrice: attractionCost[in.DayIndex%2], VisitDuration: 120},
		}}, nil
	}))
	reg.MustRegister(domain.ToolHotelSearch, lookup(func(in domain.EnrichInput) (any, error) {
		return map[string]any{"hotels": []domain.Hotel{
			{Name: fmt.Sprintf("酒店%d", in.DayIndex+1), EstimatedCost: hotelCost[in.DayIndex%2]},
		}}, nil
	}))
	reg.MustRegister(domain.ToolWeatherLookup, lookup(func(in domain.EnrichInput) (any, error) {
		return map[string]any{"weather": domain.WeatherInfo{DayWeather: "晴", NightWeather: "多云", DayTemp: 20, NightTemp: 13}}, nil
	}))
	reg.MustRegister(domain.ToolMealSuggestion, lookup(func(in domain.EnrichInput) (any, error) {
		costs := mealCost[in.DayIndex%2]
		meals := make([]domain.Meal, 0, 3)
		for i, mt := range domain.MealTypes {
			meals = append(meals, domain.Meal{Type: mt, Name: fmt.Sprintf("%s%d", mt, in.DayIndex+1), EstimatedCost: costs[i]})
		}
		return map[string]any{"meals": meals}, nil
	}))
	return reg
}

// failDay makes every lookup for day fail.
func failDay(reg *tools.Registry, day int) {
	scenario := scenarioRegistry()
	for _, cat := range domain.Categories {
		name := cat.ToolFor()
		reg.Replace(name, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			var in domain.EnrichInput
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			if in.DayIndex == day {
				return nil, fmt.Errorf("%w: %s is down", tools.ErrUnavailable, name)
			}
			return scenario.Execute(ctx, name, args)
		})
	}
}

type fixture struct {
	svc    *Service
	ledger *ledger.Ledger
}

func newFixture(t *testing.T, reg *tools.Registry, model llm.LLMClient, mutate ...func(*Config)) *fixture {
	t.Helper()
	l := ledger.New(helpers.NewTestSQLiteStore(t), cache.NewSessionCache(time.Hour), nil, zap.NewNop())
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	inv := invoker.New(reg, l, zap.NewNop())
	svc := New(l, inv, model, cfg, zap.NewNop(), WithClock(func() time.Time { return testNow }))
	return &fixture{svc: svc, ledger: l}
}

type failingLLM struct{}

func (failingLLM) Chat(context.Context, []llm.Message) (string, error) {
	return "", errors.New("model unavailable")
}

func (failingLLM) ClassifyIntent(context.Context, domain.IntentInput) (domain.IntentLabel, error) {
	return domain.IntentLabel{}, errors.New("model unavailable")
}

func TestHandleTurn_XiamenScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	res, err := f.svc.HandleTurn(ctx, "s1", xiamenTrip)
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Equal(t, domain.StateAwaitingInput, res.State)
	assert.False(t, res.Retryable)
	require.NotNil(t, res.Plan)

	plan := res.Plan
	assert.Equal(t, "s1", plan.SessionID)
	assert.Equal(t, "厦门2日游", plan.Title)
	require.Len(t, plan.Days, 2)
	assert.Equal(t, "2026-01-20", plan.Days[0].Date.String())
	assert.Equal(t, "2026-01-21", plan.Days[1].Date.String())
	assert.Equal(t, domain.Budget{
		TotalAttractions:    160,
		TotalHotels:         450,
		TotalMeals:          330,
		TotalTransportation: 100,
		Total:               1040,
	}, plan.Budget)
	assert.Equal(t, plan.Budget, itinerary.RecomputeBudget(plan))
	assert.Contains(t, res.AssistantText, "1040")

	stored, err := f.svc.GetPlan(ctx, plan.PlanID)
	require.NoError(t, err)
	assert.Equal(t, plan.Budget, stored.Budget)

	plans, err := f.svc.ListPlans(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	// One classifier call plus 2 days x 4 lookups.
	records, err := f.svc.GetToolCalls(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, 9)

	session, err := f.svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, session.Context.PendingTrip)
	assert.Equal(t, domain.StateAwaitingInput, session.Context.State)
	assert.Equal(t, xiamenTrip, session.Title)

	turns, err := f.svc.GetSessionHistory(ctx, "s1", 0, "")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	var meta domain.TurnMetadata
	require.NoError(t, json.Unmarshal(turns[1].Metadata, &meta))
	assert.Equal(t, plan.PlanID, meta.PlanID)
	assert.Equal(t, domain.StrategyTripPlanning, meta.Intent)
}

func TestHandleTurn_DegradedFirstDay(t *testing.T) {
	reg := scenarioRegistry()
	failDay(reg, 0)
	f := newFixture(t, reg, llm.NewMockClient())

	res, err := f.svc.HandleTurn(context.Background(), "s1", xiamenTrip)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)

	day1, day2 := res.Plan.Days[0], res.Plan.Days[1]
	assert.True(t, day1.Degraded)
	assert.Nil(t, day1.Hotel)
	require.Len(t, day1.Meals, 3)
	for _, meal := range day1.Meals {
		assert.True(t, meal.Placeholder)
	}

	assert.False(t, day2.Degraded)
	require.NotNil(t, day2.Hotel)
	assert.Equal(t, int64(250), day2.Hotel.EstimatedCost)
	assert.Equal(t, int64(100+250+170+100), res.Plan.Budget.Total)

	records, err := f.svc.GetToolCalls(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, records, 9)
}

func TestHandleTurn_MissingDestinationAsksAndWaits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	res, err := f.svc.HandleTurn(ctx, "s1", "2026年1月20日出发，玩两天")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Nil(t, res.Plan)
	assert.Equal(t, []string{domain.FieldDestination, domain.FieldPreferences}, res.Missing)
	assert.Contains(t, res.AssistantText, "为了帮你规划行程")

	plans, err := f.svc.ListPlans(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, plans)

	session, err := f.svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Context.PendingTrip)
	assert.Equal(t, 2, session.Context.PendingTrip.DayCount)

	// A bare city answers the clarification even though it reads as chat.
	res, err = f.svc.HandleTurn(ctx, "s1", "厦门吧")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	require.NotNil(t, res.Plan)
	assert.Equal(t, int64(1040), res.Plan.Budget.Total)

	records, err := f.svc.GetToolCalls(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, records, 10)
}

func TestHandleTurn_PreferenceAnswerKeepsPlanning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	res, err := f.svc.HandleTurn(ctx, "s1", "我想去旅游")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Equal(t, []string{domain.FieldDestination, domain.FieldDates, domain.FieldPreferences}, res.Missing)

	// Answering only the preference question reads as chat to the classifier.
	res, err = f.svc.HandleTurn(ctx, "s1", "没有偏好")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Nil(t, res.Plan)
	assert.Equal(t, []string{domain.FieldDestination, domain.FieldDates}, res.Missing)

	res, err = f.svc.HandleTurn(ctx, "s1", "去厦门1月20日玩两天")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Empty(t, res.Missing)
	require.NotNil(t, res.Plan)
	assert.Equal(t, int64(1040), res.Plan.Budget.Total)
}

func TestHandleTurn_PreferenceKeywordAnswersClarification(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	_, err := f.svc.HandleTurn(ctx, "s1", "我想去旅游")
	require.NoError(t, err)

	res, err := f.svc.HandleTurn(ctx, "s1", "喜欢美食")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyTripPlanning, res.Strategy)
	assert.Equal(t, []string{domain.FieldDestination, domain.FieldDates}, res.Missing)

	session, err := f.svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Context.PendingTrip)
	assert.Equal(t, []string{"food"}, session.Context.PendingTrip.Preferences)
}

func TestHandleTurn_EnrichmentFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	reg := scenarioRegistry()
	failDay(reg, 0)
	// With a one-day trip every lookup fails.
	f := newFixture(t, reg, llm.NewMockClient())

	res, err := f.svc.HandleTurn(ctx, "s1", "2026年1月20日去厦门玩一天")
	require.NoError(t, err)
	assert.True(t, res.Retryable)
	assert.Nil(t, res.Plan)
	assert.Equal(t, domain.StateAwaitingInput, res.State)

	plans, err := f.svc.ListPlans(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, plans)

	session, err := f.svc.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, session.Context.PendingTrip)
	assert.Equal(t, domain.StateAwaitingInput, session.Context.State)

	// Once the lookups recover the pending request can be retried as is.
	healthy := scenarioRegistry()
	for _, cat := range domain.Categories {
		name := cat.ToolFor()
		reg.Replace(name, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
			return healthy.Execute(ctx, name, args)
		})
	}
	res, err = f.svc.HandleTurn(ctx, "s1", "重新规划")
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.Equal(t, 1, res.Plan.DayCount)
}

func TestHandleTurn_Chat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	res, err := f.svc.HandleTurn(ctx, "", "你好")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.SessionID, "sess_"))
	assert.Equal(t, domain.StrategyGeneralChat, res.Strategy)
	assert.Contains(t, res.AssistantText, "你好")
	assert.Nil(t, res.Plan)

	turns, err := f.svc.GetSessionHistory(ctx, res.SessionID, 0, "")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
}

func TestHandleTurn_ChatFallsBackWhenModelFails(t *testing.T) {
	f := newFixture(t, scenarioRegistry(), failingLLM{})

	res, err := f.svc.HandleTurn(context.Background(), "s1", "今天厦门天气怎么样？")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyInfoQuery, res.Strategy)
	assert.Equal(t, fallbackReply(domain.StrategyInfoQuery), res.AssistantText)
}

func TestHandleTurn_SuggestionsFromModel(t *testing.T) {
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient(), func(c *Config) { c.LLMSuggestions = true })

	res, err := f.svc.HandleTurn(context.Background(), "s1", xiamenTrip)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.True(t, strings.HasPrefix(res.Plan.OverallSuggestions, "[MOCK]"))

	f = newFixture(t, scenarioRegistry(), failingLLM{}, func(c *Config) { c.LLMSuggestions = true })
	res, err = f.svc.HandleTurn(context.Background(), "s1", xiamenTrip)
	require.NoError(t, err)
	require.NotNil(t, res.Plan)
	assert.Equal(t, itinerary.Summary(res.Plan), res.Plan.OverallSuggestions)
}

func TestHandleTurn_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	_, err := f.svc.HandleTurn(ctx, "s1", "   ")
	assert.ErrorIs(t, err, ErrEmptyTurn)

	_, err = f.svc.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetPlan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetSessionHistory(ctx, "missing", 10, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.ListPlans(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleTurn_BusySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	release, err := f.svc.locks.acquire(ctx, "s1", 0)
	require.NoError(t, err)

	_, err = f.svc.HandleTurn(ctx, "s1", "你好")
	assert.ErrorIs(t, err, ErrSessionBusy)

	// Other sessions are not blocked.
	_, err = f.svc.HandleTurn(ctx, "s2", "你好")
	require.NoError(t, err)

	release()
	_, err = f.svc.HandleTurn(ctx, "s1", "你好")
	require.NoError(t, err)

	turns, err := f.svc.GetSessionHistory(ctx, "s1", 0, "")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestHandleTurn_WaitsForBusySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient(), func(c *Config) { c.LockWait = 2 * time.Second })

	release, err := f.svc.locks.acquire(ctx, "s1", 0)
	require.NoError(t, err)
	time.AfterFunc(50*time.Millisecond, release)

	_, err = f.svc.HandleTurn(ctx, "s1", "你好")
	require.NoError(t, err)
}

func TestHandleTurn_ConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, scenarioRegistry(), llm.NewMockClient())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.HandleTurn(ctx, fmt.Sprintf("s%d", i), xiamenTrip)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "session %d", i)
		plans, err := f.svc.ListPlans(ctx, fmt.Sprintf("s%d", i))
		require.NoError(t, err)
		assert.Len(t, plans, 1)
	}
	assert.Equal(t, 0, f.svc.locks.size())
}
