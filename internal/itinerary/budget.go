package itinerary

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

func computeBudget(days []domain.DayPlan, transport int64) domain.Budget {
	b := domain.Budget{TotalTransportation: transport}
	for _, d := range days {
		b.TotalAttractions += lo.SumBy(d.Attractions, func(a domain.Attraction) int64 { return a.TicketPrice })
		if d.Hotel != nil {
			b.TotalHotels += d.Hotel.EstimatedCost
		}
		b.TotalMeals += lo.SumBy(d.Meals, func(m domain.Meal) int64 { return m.EstimatedCost })
	}
	b.Total = b.TotalAttractions + b.TotalHotels + b.TotalMeals + b.TotalTransportation
	return b
}

// RecomputeBudget rebuilds the budget from the plan's days. Transportation is
// a per-trip figure, so the stored amount is carried over.
func RecomputeBudget(plan *domain.TravelPlan) domain.Budget {
	return computeBudget(plan.Days, plan.Budget.TotalTransportation)
}

// Verify checks that the budget matches the days and that the days tile the
// trip's date range with three meals each.
func Verify(plan *domain.TravelPlan) error {
	if plan.DayCount < 1 || len(plan.Days) != plan.DayCount {
		return fmt.Errorf("%w: %d days for day_count %d", ErrInvariantViolation, len(plan.Days), plan.DayCount)
	}
	if !plan.EndDate.Equal(plan.StartDate.AddDays(plan.DayCount - 1)) {
		return fmt.Errorf("%w: end date %s does not match %d days from %s", ErrInvariantViolation, plan.EndDate, plan.DayCount, plan.StartDate)
	}
	for i, d := range plan.Days {
		if d.DayIndex != i || !d.Date.Equal(plan.StartDate.AddDays(i)) {
			return fmt.Errorf("%w: day %d is out of sequence (%s)", ErrInvariantViolation, i, d.Date)
		}
		if len(d.Meals) != len(domain.MealTypes) {
			return fmt.Errorf("%w: day %d has %d meals", ErrInvariantViolation, i, len(d.Meals))
		}
		for j, mt := range domain.MealTypes {
			if d.Meals[j].Type != mt {
				return fmt.Errorf("%w: day %d meal %d is %s, want %s", ErrInvariantViolation, i, j, d.Meals[j].Type, mt)
			}
		}
	}
	if got := RecomputeBudget(plan); got != plan.Budget {
		return fmt.Errorf("%w: budget %+v does not match days %+v", ErrInvariantViolation, plan.Budget, got)
	}
	return nil
}
