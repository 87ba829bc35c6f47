package tools

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Catalog is the offline data behind the builtin capabilities.
type Catalog struct {
	Weather  []WeatherPattern       `yaml:"weather"`
	Cities   map[string]CityCatalog `yaml:"cities"`
	Fallback FallbackCosts          `yaml:"fallback"`
}

// CityCatalog lists what one city offers.
type CityCatalog struct {
	Attractions []AttractionEntry `yaml:"attractions"`
	Hotels      []HotelEntry      `yaml:"hotels"`
	Restaurants []RestaurantEntry `yaml:"restaurants"`
}

type WeatherPattern struct {
	Day           string `yaml:"day"`
	Night         string `yaml:"night"`
	High          int    `yaml:"high"`
	Low           int    `yaml:"low"`
	WindDirection string `yaml:"wind_direction"`
	WindPower     string `yaml:"wind_power"`
}

type AttractionEntry struct {
	Name          string  `yaml:"name"`
	Address       string  `yaml:"address"`
	Category      string  `yaml:"category"`
	VisitDuration int     `yaml:"visit_duration"`
	TicketPrice   int64   `yaml:"ticket_price"`
	Lat           float64 `yaml:"lat"`
	Lng           float64 `yaml:"lng"`
}

type HotelEntry struct {
	Name          string  `yaml:"name"`
	Address       string  `yaml:"address"`
	Type          string  `yaml:"type"`
	PriceRange    string  `yaml:"price_range"`
	Rating        float64 `yaml:"rating"`
	EstimatedCost int64   `yaml:"estimated_cost"`
	Lat           float64 `yaml:"lat"`
	Lng           float64 `yaml:"lng"`
}

type RestaurantEntry struct {
	Type          domain.MealType `yaml:"type"`
	Name          string          `yaml:"name"`
	Address       string          `yaml:"address"`
	Description   string          `yaml:"description"`
	EstimatedCost int64           `yaml:"estimated_cost"`
}

// FallbackCosts prices the generic entries produced for unlisted cities.
type FallbackCosts struct {
	AttractionCost int64                     `yaml:"attraction_cost"`
	HotelCost      int64                     `yaml:"hotel_cost"`
	MealCosts      map[domain.MealType]int64 `yaml:"meal_costs"`
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return parseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog file, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Weather) == 0 {
		return nil, fmt.Errorf("catalog has no weather patterns")
	}
	return &c, nil
}

// City returns the entries for a city, synthesizing generic ones when the
// city is not listed.
func (c *Catalog) City(name string) CityCatalog {
	if city, ok := c.Cities[name]; ok {
		return city
	}
	fb := c.Fallback
	return CityCatalog{
		Attractions: []AttractionEntry{
			{Name: name + "城市博物馆", Category: "culture", VisitDuration: 120, TicketPrice: 0},
			{Name: name + "老城区", Category: "history", VisitDuration: 150, TicketPrice: 0},
			{Name: name + "中央公园", Category: "nature", VisitDuration: 90, TicketPrice: 0},
			{Name: name + "特色景区", Category: "photography", VisitDuration: 180, TicketPrice: fb.AttractionCost},
		},
		Hotels: []HotelEntry{
			{Name: name + "中心酒店", Type: "舒适型", EstimatedCost: fb.HotelCost, Rating: 4.2},
		},
		Restaurants: []RestaurantEntry{
			{Type: domain.MealBreakfast, Name: name + "早餐铺", EstimatedCost: fb.MealCosts[domain.MealBreakfast]},
			{Type: domain.MealLunch, Name: name + "本地菜馆", EstimatedCost: fb.MealCosts[domain.MealLunch]},
			{Type: domain.MealDinner, Name: name + "特色餐厅", EstimatedCost: fb.MealCosts[domain.MealDinner]},
		},
	}
}

func (e AttractionEntry) toDomain() domain.Attraction {
	return domain.Attraction{
		Name:          e.Name,
		Address:       e.Address,
		Location:      location(e.Lat, e.Lng),
		Category:      e.Category,
		VisitDuration: e.VisitDuration,
		TicketPrice:   e.TicketPrice,
	}
}

func (e HotelEntry) toDomain() domain.Hotel {
	return domain.Hotel{
		Name:          e.Name,
		Address:       e.Address,
		Location:      location(e.Lat, e.Lng),
		Type:          e.Type,
		PriceRange:    e.PriceRange,
		Rating:        e.Rating,
		EstimatedCost: e.EstimatedCost,
	}
}

func (e RestaurantEntry) toDomain() domain.Meal {
	return domain.Meal{
		Type:          e.Type,
		Name:          e.Name,
		Address:       e.Address,
		Description:   e.Description,
		EstimatedCost: e.EstimatedCost,
	}
}

func location(lat, lng float64) *domain.Location {
	if lat == 0 && lng == 0 {
		return nil
	}
	return &domain.Location{Lat: lat, Lng: lng}
}
