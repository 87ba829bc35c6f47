package domain

import "slices"

// Trip request field names, in the order clarifications ask for them.
const (
	FieldDestination = "destination"
	FieldDates       = "dates"
	FieldPreferences = "preferences"
)

// TripRequest is the structured form of a trip-planning conversation.
type TripRequest struct {
	Destination       string   `json:"destination,omitempty"`
	StartDate         Date     `json:"start_date"`
	DayCount          int      `json:"day_count,omitempty"`
	Preferences       []string `json:"preferences,omitempty"`
	PreferencesStated bool     `json:"preferences_stated,omitempty"`
}

// Complete reports whether enrichment may start.
func (r TripRequest) Complete() bool {
	return r.Destination != "" && r.HasDates()
}

// HasDates reports whether both the start date and duration are known.
func (r TripRequest) HasDates() bool {
	return !r.StartDate.IsZero() && r.DayCount >= 1
}

// EndDate returns the last day of the trip.
func (r TripRequest) EndDate() Date {
	if !r.HasDates() {
		return Date{}
	}
	return r.StartDate.AddDays(r.DayCount - 1)
}

// Clone returns a deep copy.
func (r TripRequest) Clone() TripRequest {
	r.Preferences = slices.Clone(r.Preferences)
	return r
}
