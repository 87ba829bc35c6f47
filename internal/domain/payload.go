package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrPayloadShape is returned when a capability's output does not match its kind.
var ErrPayloadShape = errors.New("payload does not match tool kind")

// IntentLabel is the intent classifier's answer.
type IntentLabel struct {
	Label      string  `json:"intent"`
	Confidence float64 `json:"confidence,omitempty"`
}

// ToolPayload is the decoded output of a capability, tagged by kind.
// Exactly one of the variant fields is set, matching Kind.
type ToolPayload struct {
	Kind        ToolKind     `json:"kind"`
	Intent      *IntentLabel `json:"intent,omitempty"`
	Attractions []Attraction `json:"attractions,omitempty"`
	Hotels      []Hotel      `json:"hotels,omitempty"`
	Weather     *WeatherInfo `json:"weather,omitempty"`
	Meals       []Meal       `json:"meals,omitempty"`
}

// wirePayload is the JSON a capability returns.
type wirePayload struct {
	Intent      *string       `json:"intent,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	Attractions *[]Attraction `json:"attractions,omitempty"`
	Hotels      *[]Hotel      `json:"hotels,omitempty"`
	Weather     *WeatherInfo  `json:"weather,omitempty"`
	Meals       *[]Meal       `json:"meals,omitempty"`
}

// DecodePayload decodes raw capability output into the variant for kind.
func DecodePayload(kind ToolKind, raw json.RawMessage) (*ToolPayload, error) {
	var w wirePayload
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}

	p := &ToolPayload{Kind: kind}
	switch kind {
	case ToolKindIntent:
		if w.Intent == nil {
			return nil, fmt.Errorf("%w: missing intent", ErrPayloadShape)
		}
		p.Intent = &IntentLabel{Label: *w.Intent, Confidence: w.Confidence}
	case ToolKindAttractions:
		if w.Attractions == nil {
			return nil, fmt.Errorf("%w: missing attractions", ErrPayloadShape)
		}
		p.Attractions = *w.Attractions
	case ToolKindHotels:
		if w.Hotels == nil {
			return nil, fmt.Errorf("%w: missing hotels", ErrPayloadShape)
		}
		p.Hotels = *w.Hotels
	case ToolKindWeather:
		if w.Weather == nil {
			return nil, fmt.Errorf("%w: missing weather", ErrPayloadShape)
		}
		p.Weather = w.Weather
	case ToolKindMeals:
		if w.Meals == nil {
			return nil, fmt.Errorf("%w: missing meals", ErrPayloadShape)
		}
		p.Meals = *w.Meals
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrPayloadShape, kind)
	}
	return p, nil
}

// IntentInput is the request sent to the intent classifier.
type IntentInput struct {
	Text        string   `json:"text"`
	PriorIntent Strategy `json:"prior_intent,omitempty"`
}

// EnrichInput is the request sent to the lookup capabilities.
type EnrichInput struct {
	City        string     `json:"city"`
	Date        Date       `json:"date"`
	DayIndex    int        `json:"day_index"`
	Preferences []string   `json:"preferences,omitempty"`
	MealTypes   []MealType `json:"meal_types,omitempty"`
}
