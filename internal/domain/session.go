package domain

import (
	"encoding/json"
	"time"
)

// Session is one conversation between a user and the assistant.
type Session struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	Title        string         `json:"title"`
	Context      SessionContext `json:"context"`
	MessageCount int            `json:"message_count"`
	IsActive     bool           `json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SessionContext is the per-session bag carried between turns.
type SessionContext struct {
	State       SessionState `json:"state"`
	PendingTrip *TripRequest `json:"pending_trip,omitempty"`
	LastIntent  Strategy     `json:"last_intent,omitempty"`
}

// Extracting reports whether the session is waiting on missing trip fields.
func (c SessionContext) Extracting() bool {
	return c.PendingTrip != nil && !c.PendingTrip.Complete()
}

// Turn is one immutable message within a session.
type Turn struct {
	TurnID    string          `json:"turn_id"`
	SessionID string          `json:"session_id"`
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// TurnMetadata is the structured metadata attached to assistant turns.
type TurnMetadata struct {
	Intent    Strategy `json:"intent,omitempty"`
	PlanID    string   `json:"plan_id,omitempty"`
	Missing   []string `json:"missing_fields,omitempty"`
	Retryable bool     `json:"retryable,omitempty"`
	Apology   bool     `json:"apology,omitempty"`
}
