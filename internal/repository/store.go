// Package repository persists sessions, turns, tool-call records and travel plans.
package repository

import (
	"context"
	"errors"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
)

// ErrDuplicatePlan is returned when a plan id is inserted twice.
var ErrDuplicatePlan = errors.New("travel plan already exists")

// Store defines the interface for data persistence.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID, userID string) (*domain.Session, error)
	UpdateSessionContext(ctx context.Context, sessionID string, sc domain.SessionContext) error

	// Turn operations
	AppendTurn(ctx context.Context, turn *domain.Turn, title string) error
	GetTurns(ctx context.Context, sessionID string, limit int, before string) ([]domain.Turn, error)

	// ToolCall operations
	CreateToolCall(ctx context.Context, record *domain.ToolCallRecord) error
	GetToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCallRecord, error)

	// Plan operations
	CreatePlan(ctx context.Context, plan *domain.TravelPlan) error
	GetPlan(ctx context.Context, planID string) (*domain.TravelPlan, error)
	ListPlans(ctx context.Context, sessionID string) ([]domain.TravelPlan, error)

	// Lifecycle
	Close() error
}
