// Package domain defines the core domain models for the trip agent.
package domain

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Strategy is the handling path chosen for a turn.
type Strategy string

const (
	StrategyGeneralChat  Strategy = "general_chat"
	StrategyInfoQuery    Strategy = "info_query"
	StrategyTripPlanning Strategy = "trip_planning"
)

// SessionState tracks where a session is on the trip-planning path.
type SessionState string

const (
	StateAwaitingInput SessionState = "AWAITING_INPUT"
	StateExtracting    SessionState = "EXTRACTING"
	StateEnriching     SessionState = "ENRICHING"
	StateAssembling    SessionState = "ASSEMBLING"
	StatePlanLinked    SessionState = "PLAN_LINKED"
)

// Capability names.
const (
	ToolIntentClassifier = "intent_classifier"
	ToolAttractionSearch = "attraction_search"
	ToolHotelSearch      = "hotel_search"
	ToolWeatherLookup    = "weather_lookup"
	ToolMealSuggestion   = "meal_suggestion"
)

// ToolKind tags the payload shape a capability returns.
type ToolKind string

const (
	ToolKindIntent      ToolKind = "intent"
	ToolKindAttractions ToolKind = "attractions"
	ToolKindHotels      ToolKind = "hotels"
	ToolKindWeather     ToolKind = "weather"
	ToolKindMeals       ToolKind = "meals"
)

// KindOf returns the payload kind produced by a capability.
func KindOf(toolName string) (ToolKind, bool) {
	switch toolName {
	case ToolIntentClassifier:
		return ToolKindIntent, true
	case ToolAttractionSearch:
		return ToolKindAttractions, true
	case ToolHotelSearch:
		return ToolKindHotels, true
	case ToolWeatherLookup:
		return ToolKindWeather, true
	case ToolMealSuggestion:
		return ToolKindMeals, true
	}
	return "", false
}

// OutcomeStatus is the normalized result of one capability invocation.
type OutcomeStatus string

const (
	OutcomeSuccess         OutcomeStatus = "success"
	OutcomeTimeout         OutcomeStatus = "timeout"
	OutcomeInvocationError OutcomeStatus = "invocation_error"
	OutcomeUnavailable     OutcomeStatus = "unavailable"
)

// ToolCallStatus is the status persisted on a ToolCallRecord.
type ToolCallStatus string

const (
	ToolCallStatusSuccess ToolCallStatus = "success"
	ToolCallStatusFailure ToolCallStatus = "failure"
	ToolCallStatusTimeout ToolCallStatus = "timeout"
)

// RecordStatus folds an outcome into the persisted status.
func (s OutcomeStatus) RecordStatus() ToolCallStatus {
	switch s {
	case OutcomeSuccess:
		return ToolCallStatusSuccess
	case OutcomeTimeout:
		return ToolCallStatusTimeout
	default:
		return ToolCallStatusFailure
	}
}

// Category is one enrichment slot of a day.
type Category string

const (
	CategoryHotel       Category = "hotel"
	CategoryAttractions Category = "attractions"
	CategoryWeather     Category = "weather"
	CategoryMeals       Category = "meals"
)

// Categories lists the enrichment slots in a fixed order.
var Categories = []Category{CategoryHotel, CategoryAttractions, CategoryWeather, CategoryMeals}

// ToolFor returns the capability that fills a category.
func (c Category) ToolFor() string {
	switch c {
	case CategoryHotel:
		return ToolHotelSearch
	case CategoryAttractions:
		return ToolAttractionSearch
	case CategoryWeather:
		return ToolWeatherLookup
	case CategoryMeals:
		return ToolMealSuggestion
	}
	return ""
}

// MealType is one of the three daily meals.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// MealTypes lists the daily meals in serving order.
var MealTypes = []MealType{MealBreakfast, MealLunch, MealDinner}

// PlanStatus is the lifecycle status of a travel plan.
type PlanStatus string

const (
	PlanStatusTodo      PlanStatus = "todo"
	PlanStatusOngoing   PlanStatus = "ongoing"
	PlanStatusCompleted PlanStatus = "completed"
)
