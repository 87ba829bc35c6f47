package domain

import "time"

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Attraction is a sight to visit.
type Attraction struct {
	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	Location      *Location `json:"location,omitempty"`
	Category      string    `json:"category,omitempty"`
	VisitDuration int       `json:"visit_duration"`
	TicketPrice   int64     `json:"ticket_price"`
	Description   string    `json:"description,omitempty"`
}

// Hotel is a place to stay for one night.
type Hotel struct {
	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	Location      *Location `json:"location,omitempty"`
	Type          string    `json:"type,omitempty"`
	PriceRange    string    `json:"price_range,omitempty"`
	Rating        float64   `json:"rating,omitempty"`
	EstimatedCost int64     `json:"estimated_cost"`
}

// Meal is one of a day's three meals.
type Meal struct {
	Type          MealType  `json:"type"`
	Name          string    `json:"name"`
	Address       string    `json:"address,omitempty"`
	Location      *Location `json:"location,omitempty"`
	Description   string    `json:"description,omitempty"`
	EstimatedCost int64     `json:"estimated_cost"`
	Placeholder   bool      `json:"placeholder,omitempty"`
}

// WeatherInfo is the forecast for one day.
type WeatherInfo struct {
	Date          Date   `json:"date"`
	DayWeather    string `json:"day_weather"`
	NightWeather  string `json:"night_weather"`
	DayTemp       int    `json:"day_temp"`
	NightTemp     int    `json:"night_temp"`
	WindDirection string `json:"wind_direction,omitempty"`
	WindPower     string `json:"wind_power,omitempty"`
}

// DayPlan is one day of an itinerary.
type DayPlan struct {
	DayIndex        int          `json:"day_index"`
	Date            Date         `json:"date"`
	Description     string       `json:"description,omitempty"`
	Hotel           *Hotel       `json:"hotel"`
	Attractions     []Attraction `json:"attractions"`
	Meals           []Meal       `json:"meals"`
	Weather         *WeatherInfo `json:"weather,omitempty"`
	Degraded        bool         `json:"degraded,omitempty"`
	DegradedReasons []Category   `json:"degraded_reasons,omitempty"`
}

// Budget is derived from the day plans and never edited directly.
type Budget struct {
	TotalAttractions    int64 `json:"total_attractions"`
	TotalHotels         int64 `json:"total_hotels"`
	TotalMeals          int64 `json:"total_meals"`
	TotalTransportation int64 `json:"total_transportation"`
	Total               int64 `json:"total"`
}

// TravelPlan is the persisted itinerary produced for a session.
type TravelPlan struct {
	PlanID             string        `json:"plan_id"`
	SessionID          string        `json:"session_id"`
	Title              string        `json:"title"`
	City               string        `json:"city"`
	StartDate          Date          `json:"start_date"`
	EndDate            Date          `json:"end_date"`
	DayCount           int           `json:"day_count"`
	Preferences        []string      `json:"preferences,omitempty"`
	Days               []DayPlan     `json:"days"`
	WeatherInfo        []WeatherInfo `json:"weather_info,omitempty"`
	OverallSuggestions string        `json:"overall_suggestions,omitempty"`
	Budget             Budget        `json:"budget"`
	Status             PlanStatus    `json:"status"`
	IsFavorite         bool          `json:"is_favorite"`
	IsCompleted        bool          `json:"is_completed"`
	CreatedAt          time.Time     `json:"created_at"`
}

// SlotOutcome is the enrichment result for one (day, category) pair.
type SlotOutcome struct {
	Status  OutcomeStatus `json:"status"`
	Payload *ToolPayload  `json:"payload,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// OK reports whether the slot holds a usable result.
func (s SlotOutcome) OK() bool {
	return s.Status == OutcomeSuccess && s.Payload != nil
}

// PartialDayPlan is what enrichment collected for one day.
type PartialDayPlan struct {
	DayIndex int                      `json:"day_index"`
	Date     Date                     `json:"date"`
	Slots    map[Category]SlotOutcome `json:"slots"`
}

// Slot returns the outcome for c, or a timeout if the slot never reported.
func (p *PartialDayPlan) Slot(c Category) SlotOutcome {
	if p == nil {
		return SlotOutcome{Status: OutcomeTimeout}
	}
	s, ok := p.Slots[c]
	if !ok {
		return SlotOutcome{Status: OutcomeTimeout}
	}
	return s
}
