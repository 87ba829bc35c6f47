package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/samber/lo"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

const attractionsPerDay = 3

// RegisterBuiltins registers the catalog-backed lookup capabilities and the
// intent classifier.
func RegisterBuiltins(r *Registry, c *Catalog, classifier IntentClassifier) error {
	b := &builtin{catalog: c}
	for name, exec := range map[string]ExecutorFunc{
		domain.ToolIntentClassifier: IntentExecutor(classifier),
		domain.ToolAttractionSearch: b.attractions,
		domain.ToolHotelSearch:      b.hotels,
		domain.ToolWeatherLookup:    b.weather,
		domain.ToolMealSuggestion:   b.meals,
	} {
		if err := r.Register(name, exec); err != nil {
			return err
		}
	}
	return nil
}

type builtin struct {
	catalog *Catalog
}

func decodeEnrichInput(args json.RawMessage) (domain.EnrichInput, error) {
	var in domain.EnrichInput
	if err := json.Unmarshal(args, &in); err != nil {
		return in, fmt.Errorf("invalid arguments: %w", err)
	}
	if in.City == "" {
		return in, fmt.Errorf("invalid arguments: city is required")
	}
	if in.DayIndex < 0 {
		return in, fmt.Errorf("invalid arguments: day_index must not be negative")
	}
	return in, nil
}

func (b *builtin) attractions(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	in, err := decodeEnrichInput(args)
	if err != nil {
		return nil, err
	}
	entries := b.catalog.City(in.City).Attractions
	if len(in.Preferences) > 0 {
		matched, rest := lo.FilterReject(entries, func(e AttractionEntry, _ int) bool {
			return lo.Contains(in.Preferences, e.Category)
		})
		entries = append(matched, rest...)
	}

	picked := rotate(entries, in.DayIndex*attractionsPerDay, attractionsPerDay)
	out := lo.Map(picked, func(e AttractionEntry, _ int) domain.Attraction { return e.toDomain() })
	return json.Marshal(map[string]any{"attractions": out})
}

func (b *builtin) hotels(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	in, err := decodeEnrichInput(args)
	if err != nil {
		return nil, err
	}
	entries := b.catalog.City(in.City).Hotels
	out := lo.Map(entries, func(e HotelEntry, _ int) domain.Hotel { return e.toDomain() })
	return json.Marshal(map[string]any{"hotels": out})
}

func (b *builtin) weather(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	in, err := decodeEnrichInput(args)
	if err != nil {
		return nil, err
	}
	h := fnv.New32a()
	h.Write([]byte(in.City + in.Date.String()))
	p := b.catalog.Weather[h.Sum32()%uint32(len(b.catalog.Weather))]

	w := domain.WeatherInfo{
		Date:          in.Date,
		DayWeather:    p.Day,
		NightWeather:  p.Night,
		DayTemp:       p.High,
		NightTemp:     p.Low,
		WindDirection: p.WindDirection,
		WindPower:     p.WindPower,
	}
	return json.Marshal(map[string]any{"weather": w})
}

func (b *builtin) meals(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	in, err := decodeEnrichInput(args)
	if err != nil {
		return nil, err
	}
	types := in.MealTypes
	if len(types) == 0 {
		types = domain.MealTypes
	}
	restaurants := b.catalog.City(in.City).Restaurants

	var out []domain.Meal
	for _, mt := range types {
		candidates := lo.Filter(restaurants, func(e RestaurantEntry, _ int) bool { return e.Type == mt })
		if picked := rotate(candidates, in.DayIndex, 1); len(picked) == 1 {
			out = append(out, picked[0].toDomain())
		}
	}
	if out == nil {
		out = []domain.Meal{}
	}
	return json.Marshal(map[string]any{"meals": out})
}

// rotate returns up to n items starting at offset, wrapping around.
func rotate[T any](items []T, offset, n int) []T {
	if len(items) == 0 || n <= 0 {
		return nil
	}
	if n > len(items) {
		n = len(items)
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, items[(offset+i)%len(items)])
	}
	return out
}
