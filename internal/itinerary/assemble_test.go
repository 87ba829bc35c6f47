package itinerary

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

var start = domain.MustParseDate("2026-01-20")

func xiamen(days int) domain.TripRequest {
	return domain.TripRequest{Destination: "厦门", StartDate: start, DayCount: days, Preferences: []string{"food"}}
}

func ok(p *domain.ToolPayload) domain.SlotOutcome {
	return domain.SlotOutcome{Status: domain.OutcomeSuccess, Payload: p}
}

func hotels(costs ...int64) domain.SlotOutcome {
	p := &domain.ToolPayload{Kind: domain.ToolKindHotels, Hotels: []domain.Hotel{}}
	for _, c := range costs {
		p.Hotels = append(p.Hotels, domain.Hotel{Name: "酒店", EstimatedCost: c})
	}
	return ok(p)
}

func attractions(names []string, prices ...int64) domain.SlotOutcome {
	p := &domain.ToolPayload{Kind: domain.ToolKindAttractions, Attractions: []domain.Attraction{}}
	for i, price := range prices {
		p.Attractions = append(p.Attractions, domain.Attraction{Name: names[i], TicketPrice: price})
	}
	return ok(p)
}

func meals(breakfast, lunch, dinner int64) domain.SlotOutcome {
	return ok(&domain.ToolPayload{Kind: domain.ToolKindMeals, Meals: []domain.Meal{
		{Type: domain.MealDinner, Name: "晚餐", EstimatedCost: dinner},
		{Type: domain.MealBreakfast, Name: "早餐", EstimatedCost: breakfast},
		{Type: domain.MealLunch, Name: "午餐", EstimatedCost: lunch},
	}})
}

func weather(day string) domain.SlotOutcome {
	return ok(&domain.ToolPayload{Kind: domain.ToolKindWeather, Weather: &domain.WeatherInfo{DayWeather: day, DayTemp: 20}})
}

func failed(status domain.OutcomeStatus) domain.SlotOutcome {
	return domain.SlotOutcome{Status: status, Error: string(status)}
}

func scenario() map[int]*domain.PartialDayPlan {
	return map[int]*domain.PartialDayPlan{
		0: {DayIndex: 0, Date: start, Slots: map[domain.Category]domain.SlotOutcome{
			domain.CategoryHotel:       hotels(200, 300),
			domain.CategoryAttractions: attractions([]string{"鼓浪屿", "胡里山炮台"}, 35, 25),
			domain.CategoryWeather:     weather("晴"),
			domain.CategoryMeals:       meals(25, 55, 80),
		}},
		1: {DayIndex: 1, Date: start.AddDays(1), Slots: map[domain.Category]domain.SlotOutcome{
			domain.CategoryHotel:       hotels(250),
			domain.CategoryAttractions: attractions([]string{"厦门大学", "环岛路"}, 100, 0),
			domain.CategoryWeather:     weather("小雨"),
			domain.CategoryMeals:       meals(30, 60, 80),
		}},
	}
}

func TestAssemble_Scenario(t *testing.T) {
	opts := DefaultOptions()
	opts.PlanID = "plan_1"
	opts.SessionID = "s1"
	opts.CreatedAt = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	plan, err := Assemble(xiamen(2), scenario(), opts)
	require.NoError(t, err)

	require.Len(t, plan.Days, 2)
	assert.Equal(t, "2026-01-20", plan.Days[0].Date.String())
	assert.Equal(t, "2026-01-21", plan.Days[1].Date.String())
	assert.Equal(t, "2026-01-21", plan.EndDate.String())
	assert.Equal(t, "厦门2日游", plan.Title)
	assert.Equal(t, "s1", plan.SessionID)
	assert.Equal(t, domain.PlanStatusTodo, plan.Status)

	assert.Equal(t, domain.Budget{
		TotalAttractions:    160,
		TotalHotels:         450,
		TotalMeals:          330,
		TotalTransportation: 100,
		Total:               1040,
	}, plan.Budget)
	assert.Equal(t, plan.Budget, RecomputeBudget(plan))

	// First hotel wins; attractions keep their order; meals are sorted by type.
	assert.Equal(t, int64(200), plan.Days[0].Hotel.EstimatedCost)
	assert.Equal(t, "鼓浪屿", plan.Days[0].Attractions[0].Name)
	assert.Equal(t, "胡里山炮台", plan.Days[0].Attractions[1].Name)
	assert.Equal(t, domain.MealBreakfast, plan.Days[0].Meals[0].Type)
	assert.Equal(t, domain.MealDinner, plan.Days[0].Meals[2].Type)
	assert.False(t, plan.Days[0].Degraded)

	require.Len(t, plan.WeatherInfo, 2)
	assert.Equal(t, "2026-01-21", plan.WeatherInfo[1].Date.String())
	assert.Contains(t, plan.OverallSuggestions, "1040")
	assert.Contains(t, plan.OverallSuggestions, "带伞")
	require.NoError(t, Verify(plan))
}

func TestAssemble_DegradedDay(t *testing.T) {
	partial := scenario()
	partial[0] = &domain.PartialDayPlan{DayIndex: 0, Date: start, Slots: map[domain.Category]domain.SlotOutcome{
		domain.CategoryHotel:       failed(domain.OutcomeTimeout),
		domain.CategoryAttractions: failed(domain.OutcomeInvocationError),
		domain.CategoryWeather:     failed(domain.OutcomeUnavailable),
		domain.CategoryMeals:       failed(domain.OutcomeTimeout),
	}}

	plan, err := Assemble(xiamen(2), partial, DefaultOptions())
	require.NoError(t, err)

	day1 := plan.Days[0]
	assert.True(t, day1.Degraded)
	assert.Nil(t, day1.Hotel)
	assert.Empty(t, day1.Attractions)
	assert.NotNil(t, day1.Attractions)
	assert.Nil(t, day1.Weather)
	assert.ElementsMatch(t, domain.Categories, day1.DegradedReasons)
	require.Len(t, day1.Meals, 3)
	for i, m := range day1.Meals {
		assert.Equal(t, domain.MealTypes[i], m.Type)
		assert.True(t, m.Placeholder)
		assert.Equal(t, PlaceholderMealName, m.Name)
		assert.Zero(t, m.EstimatedCost)
	}

	day2 := plan.Days[1]
	assert.False(t, day2.Degraded)
	assert.NotNil(t, day2.Hotel)

	assert.Equal(t, int64(100+250+170+100), plan.Budget.Total)
	assert.Equal(t, plan.Budget, RecomputeBudget(plan))
	assert.Contains(t, plan.OverallSuggestions, "第1天")
}

func TestAssemble_MissingPartials(t *testing.T) {
	plan, err := Assemble(xiamen(3), nil, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, plan.Days, 3)
	for _, d := range plan.Days {
		assert.True(t, d.Degraded)
		assert.Len(t, d.Meals, 3)
	}
	assert.Equal(t, int64(100), plan.Budget.Total)
}

func TestAssemble_PartialMealSuggestions(t *testing.T) {
	partial := scenario()
	partial[1].Slots[domain.CategoryMeals] = ok(&domain.ToolPayload{Kind: domain.ToolKindMeals, Meals: []domain.Meal{
		{Type: domain.MealLunch, Name: "沙茶面", EstimatedCost: 40},
	}})

	plan, err := Assemble(xiamen(2), partial, DefaultOptions())
	require.NoError(t, err)

	day := plan.Days[1]
	assert.True(t, day.Degraded)
	assert.Equal(t, []domain.Category{domain.CategoryMeals}, day.DegradedReasons)
	assert.True(t, day.Meals[0].Placeholder)
	assert.Equal(t, "沙茶面", day.Meals[1].Name)
	assert.True(t, day.Meals[2].Placeholder)
}

func TestAssemble_KeepsAllAttractions(t *testing.T) {
	partial := scenario()
	partial[0].Slots[domain.CategoryAttractions] = attractions([]string{"a", "b", "c", "d", "e"}, 1, 2, 3, 4, 5)

	plan, err := Assemble(xiamen(2), partial, DefaultOptions())
	require.NoError(t, err)
	day := plan.Days[0]
	require.Len(t, day.Attractions, 5)
	assert.Equal(t, "e", day.Attractions[4].Name)
	assert.Equal(t, int64(15+100), plan.Budget.TotalAttractions)
	require.NoError(t, Verify(plan))

	// Only the description is capped.
	assert.Equal(t, "第1天：a、b、c、d等5处景点", day.Description)
	assert.Equal(t, "第2天：厦门大学、环岛路", plan.Days[1].Description)

	opts := DefaultOptions()
	opts.MaxAttractionsPerDay = 0
	plan, err = Assemble(xiamen(2), partial, opts)
	require.NoError(t, err)
	assert.Equal(t, "第1天：a、b、c、d、e", plan.Days[0].Description)
}

func TestAssemble_Errors(t *testing.T) {
	_, err := Assemble(domain.TripRequest{Destination: "厦门", StartDate: start}, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrInvalidDayCount)

	_, err = Assemble(domain.TripRequest{StartDate: start, DayCount: 2}, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrIncompleteRequest)
}

func TestVerify_DetectsTampering(t *testing.T) {
	plan, err := Assemble(xiamen(2), scenario(), DefaultOptions())
	require.NoError(t, err)

	tampered := *plan
	tampered.Budget.Total++
	assert.ErrorIs(t, Verify(&tampered), ErrInvariantViolation)

	gap := *plan
	gap.Days = append([]domain.DayPlan(nil), plan.Days...)
	gap.Days[1].Date = start.AddDays(2)
	assert.ErrorIs(t, Verify(&gap), ErrInvariantViolation)

	short := *plan
	short.Days = plan.Days[:1]
	assert.ErrorIs(t, Verify(&short), ErrInvariantViolation)
}
