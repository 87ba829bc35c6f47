// Package itinerary assembles enrichment results into a TravelPlan. It does
// no I/O.
package itinerary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

var (
	ErrIncompleteRequest  = errors.New("trip request is incomplete")
	ErrInvalidDayCount    = errors.New("day count must be at least 1")
	ErrInvariantViolation = errors.New("itinerary invariant violated")
)

// PlaceholderMealName labels a meal no suggestion was found for.
const PlaceholderMealName = "自由安排"

// Options carries the values Assemble does not derive from its inputs.
type Options struct {
	PlanID    string
	SessionID string
	CreatedAt time.Time
	// TransportCost is the flat per-trip transportation estimate.
	TransportCost int64
	// MaxAttractionsPerDay caps the attractions named in a day's description;
	// 0 names all. Every returned attraction stays on the day and in the budget.
	MaxAttractionsPerDay int
}

// DefaultOptions returns the options used by the server.
func DefaultOptions() Options {
	return Options{TransportCost: 100, MaxAttractionsPerDay: 4}
}

// Assemble builds the plan for req from the per-day enrichment results.
// Missing results degrade their day instead of failing the plan.
func Assemble(req domain.TripRequest, partial map[int]*domain.PartialDayPlan, opts Options) (*domain.TravelPlan, error) {
	if req.DayCount < 1 {
		return nil, ErrInvalidDayCount
	}
	if !req.Complete() {
		return nil, ErrIncompleteRequest
	}

	plan := &domain.TravelPlan{
		PlanID:      opts.PlanID,
		SessionID:   opts.SessionID,
		Title:       fmt.Sprintf("%s%d日游", req.Destination, req.DayCount),
		City:        req.Destination,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate(),
		DayCount:    req.DayCount,
		Preferences: append([]string(nil), req.Preferences...),
		Days:        make([]domain.DayPlan, 0, req.DayCount),
		Status:      domain.PlanStatusTodo,
		CreatedAt:   opts.CreatedAt,
	}

	for i := 0; i < req.DayCount; i++ {
		day := assembleDay(i, req.StartDate.AddDays(i), partial[i], opts.MaxAttractionsPerDay)
		if day.Weather != nil {
			plan.WeatherInfo = append(plan.WeatherInfo, *day.Weather)
		}
		plan.Days = append(plan.Days, day)
	}

	plan.Budget = computeBudget(plan.Days, opts.TransportCost)
	plan.OverallSuggestions = Summary(plan)

	if err := Verify(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func assembleDay(index int, date domain.Date, p *domain.PartialDayPlan, maxAttractions int) domain.DayPlan {
	day := domain.DayPlan{
		DayIndex:    index,
		Date:        date,
		Attractions: []domain.Attraction{},
	}
	degrade := func(c domain.Category) {
		day.Degraded = true
		if !lo.Contains(day.DegradedReasons, c) {
			day.DegradedReasons = append(day.DegradedReasons, c)
		}
	}

	if slot := p.Slot(domain.CategoryHotel); slot.OK() && len(slot.Payload.Hotels) > 0 {
		hotel := slot.Payload.Hotels[0]
		day.Hotel = &hotel
	} else {
		degrade(domain.CategoryHotel)
	}

	if slot := p.Slot(domain.CategoryAttractions); slot.OK() {
		day.Attractions = append(day.Attractions, slot.Payload.Attractions...)
	} else {
		degrade(domain.CategoryAttractions)
	}

	if slot := p.Slot(domain.CategoryWeather); slot.OK() && slot.Payload.Weather != nil {
		w := *slot.Payload.Weather
		w.Date = date
		day.Weather = &w
	} else {
		degrade(domain.CategoryWeather)
	}

	var suggestions []domain.Meal
	if slot := p.Slot(domain.CategoryMeals); slot.OK() {
		suggestions = slot.Payload.Meals
	}
	day.Meals = make([]domain.Meal, 0, len(domain.MealTypes))
	for _, mt := range domain.MealTypes {
		meal, ok := lo.Find(suggestions, func(m domain.Meal) bool { return m.Type == mt })
		if !ok {
			meal = placeholderMeal(mt)
			degrade(domain.CategoryMeals)
		}
		day.Meals = append(day.Meals, meal)
	}

	day.Description = describeDay(day, maxAttractions)
	return day
}

func placeholderMeal(mt domain.MealType) domain.Meal {
	return domain.Meal{
		Type:          mt,
		Name:          PlaceholderMealName,
		Description:   "暂无推荐，可在附近自行选择",
		EstimatedCost: 0,
		Placeholder:   true,
	}
}

func describeDay(day domain.DayPlan, maxListed int) string {
	prefix := fmt.Sprintf("第%d天", day.DayIndex+1)
	if len(day.Attractions) == 0 {
		return prefix + "：自由活动"
	}
	listed := day.Attractions
	if maxListed > 0 && len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	names := lo.Map(listed, func(a domain.Attraction, _ int) string { return a.Name })
	desc := prefix + "：" + strings.Join(names, "、")
	if len(listed) < len(day.Attractions) {
		desc += fmt.Sprintf("等%d处景点", len(day.Attractions))
	}
	return desc
}

// Summary is the deterministic overall suggestion for a plan.
func Summary(plan *domain.TravelPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%d日行程，%s至%s，预计总花费%d元。", plan.City, plan.DayCount, plan.StartDate, plan.EndDate, plan.Budget.Total)

	degraded := lo.Filter(plan.Days, func(d domain.DayPlan, _ int) bool { return d.Degraded })
	if len(degraded) > 0 {
		days := lo.Map(degraded, func(d domain.DayPlan, _ int) string { return fmt.Sprintf("第%d天", d.DayIndex+1) })
		fmt.Fprintf(&b, "%s部分信息暂未查到，已用自由安排代替。", strings.Join(days, "、"))
	}
	if rainy := lo.Filter(plan.WeatherInfo, func(w domain.WeatherInfo, _ int) bool { return strings.Contains(w.DayWeather, "雨") }); len(rainy) > 0 {
		b.WriteString("行程中有降雨，记得带伞。")
	}
	return b.String()
}
