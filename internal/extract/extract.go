// Package extract turns free-text trip requests, possibly spread over several
// turns, into a structured TripRequest.
package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// DefaultMaxDays bounds day_count when no limit is configured.
const DefaultMaxDays = 15

// Result is the merged request and the fields still needed.
type Result struct {
	Request domain.TripRequest
	Missing []string
	// Notes are remarks for the user, such as a clamped duration.
	Notes []string
}

// Extractor parses turns and merges them into the carried-over request.
type Extractor struct {
	maxDays int
}

// New creates an extractor that clamps trips to maxDays.
func New(maxDays int) *Extractor {
	if maxDays < 1 {
		maxDays = DefaultMaxDays
	}
	return &Extractor{maxDays: maxDays}
}

// Extract merges what text states into existing. Stated fields replace old
// ones, absent fields are kept, and preferences accumulate unless the turn
// says only.
func (e *Extractor) Extract(text string, existing domain.TripRequest, now time.Time) Result {
	parsed := Parse(text, now)
	req := existing.Clone()

	if parsed.Destination != "" {
		req.Destination = parsed.Destination
	}
	if !parsed.StartDate.IsZero() {
		req.StartDate = parsed.StartDate
	}
	if parsed.DayCount > 0 {
		req.DayCount = parsed.DayCount
	}

	switch {
	case parsed.NoPreference:
		req.Preferences = nil
		req.PreferencesStated = true
	case len(parsed.Preferences) > 0 && parsed.Only:
		req.Preferences = parsed.Preferences
		req.PreferencesStated = true
	case len(parsed.Preferences) > 0:
		req.Preferences = lo.Union(req.Preferences, parsed.Preferences)
		req.PreferencesStated = true
	}

	var notes []string
	if req.DayCount > e.maxDays {
		notes = append(notes, fmt.Sprintf("行程最多支持%d天，已按%d天规划。", e.maxDays, e.maxDays))
		req.DayCount = e.maxDays
	}

	return Result{Request: req, Missing: MissingFields(req), Notes: notes}
}

// MissingFields lists, in order, what a clarification must ask for. A complete
// request needs nothing; otherwise unstated preferences are asked for too.
func MissingFields(req domain.TripRequest) []string {
	if req.Complete() {
		return nil
	}
	var missing []string
	if req.Destination == "" {
		missing = append(missing, domain.FieldDestination)
	}
	if !req.HasDates() {
		missing = append(missing, domain.FieldDates)
	}
	if !req.PreferencesStated && len(req.Preferences) == 0 {
		missing = append(missing, domain.FieldPreferences)
	}
	return missing
}

var questions = map[string]string{
	domain.FieldDestination: "想去哪个城市？",
	domain.FieldDates:       "计划哪天出发、玩几天？（例如：1月20日出发，玩3天）",
	domain.FieldPreferences: "有什么偏好吗？比如美食、自然风光、历史文化、购物、亲子。没有的话回复「没有偏好」即可。",
}

// ClarificationText renders one question per missing field, in order.
func ClarificationText(missing []string) string {
	if len(missing) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("为了帮你规划行程，还需要确认以下信息：")
	for i, field := range missing {
		fmt.Fprintf(&b, "\n%d. %s", i+1, questions[field])
	}
	return b.String()
}
