// Package ledger is the append-only record of a session: its turns, the tool
// calls made on its behalf and the plans linked to it.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/cache"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/itinerary"
	"github.com/xiaot623/gogo/tripagent/internal/metrics"
	"github.com/xiaot623/gogo/tripagent/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrPlanNotFound    = errors.New("travel plan not found")
	ErrPlanSession     = errors.New("travel plan belongs to another session")
)

const titleMaxRunes = 30

// Ledger wraps the store with the session bookkeeping rules.
type Ledger struct {
	store   repository.Store
	cache   *cache.SessionCache
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a ledger. cache and collector may be nil.
func New(store repository.Store, sessionCache *cache.SessionCache, collector *metrics.Collector, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:   store,
		cache:   sessionCache,
		metrics: collector,
		logger:  logger.Named("ledger"),
		now:     time.Now,
	}
}

// EnsureSession returns the session, creating it on first use.
func (l *Ledger) EnsureSession(ctx context.Context, sessionID, userID string) (*domain.Session, error) {
	session, err := l.store.GetOrCreateSession(ctx, sessionID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}
	if l.cache != nil {
		l.cache.Set(sessionID, session.Context)
	}
	return session, nil
}

// Context returns the session context, reading the cache first.
func (l *Ledger) Context(ctx context.Context, sessionID string) (domain.SessionContext, error) {
	if l.cache != nil {
		sc, found := l.cache.Get(sessionID)
		l.metrics.CacheResult(found)
		if found {
			return sc, nil
		}
	}
	session, err := l.Session(ctx, sessionID)
	if err != nil {
		return domain.SessionContext{}, err
	}
	if l.cache != nil {
		l.cache.Set(sessionID, session.Context)
	}
	return session.Context, nil
}

// UpdateContext persists the session context and refreshes the cache.
func (l *Ledger) UpdateContext(ctx context.Context, sessionID string, sc domain.SessionContext) error {
	if err := l.store.UpdateSessionContext(ctx, sessionID, sc); err != nil {
		if l.cache != nil {
			l.cache.Delete(sessionID)
		}
		return fmt.Errorf("failed to update session context: %w", err)
	}
	if l.cache != nil {
		l.cache.Set(sessionID, sc)
	}
	return nil
}

// AppendTurn adds a turn to the session. The first user turn names the session.
func (l *Ledger) AppendTurn(ctx context.Context, sessionID string, turn *domain.Turn) error {
	if turn.TurnID == "" {
		turn.TurnID = "turn_" + uuid.New().String()
	}
	turn.SessionID = sessionID
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = l.now()
	}

	var title string
	if turn.Role == domain.RoleUser {
		title = Title(turn.Content)
	}
	if err := l.store.AppendTurn(ctx, turn, title); err != nil {
		return fmt.Errorf("failed to append turn: %w", err)
	}
	return nil
}

// RecordToolCall appends a tool call record.
func (l *Ledger) RecordToolCall(ctx context.Context, sessionID string, rec domain.ToolCallRecord) error {
	rec.SessionID = sessionID
	if rec.LogID == "" {
		rec.LogID = "tc_" + uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.now()
	}
	if err := l.store.CreateToolCall(ctx, &rec); err != nil {
		return fmt.Errorf("failed to record tool call: %w", err)
	}
	return nil
}

// LinkPlan persists a fully assembled plan for the session in one transaction.
func (l *Ledger) LinkPlan(ctx context.Context, sessionID string, plan *domain.TravelPlan) error {
	if plan.SessionID == "" {
		plan.SessionID = sessionID
	}
	if plan.SessionID != sessionID {
		return fmt.Errorf("%w: %s", ErrPlanSession, plan.PlanID)
	}
	if err := itinerary.Verify(plan); err != nil {
		return err
	}
	if err := l.store.CreatePlan(ctx, plan); err != nil {
		return fmt.Errorf("failed to link plan: %w", err)
	}
	l.metrics.PlanLinked()
	l.logger.Info("plan linked",
		zap.String("session_id", sessionID),
		zap.String("plan_id", plan.PlanID),
		zap.Int64("budget_total", plan.Budget.Total))
	return nil
}

// Session returns a session or ErrSessionNotFound.
func (l *Ledger) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := l.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Turns returns up to limit turns of a session, optionally those before a turn id.
func (l *Ledger) Turns(ctx context.Context, sessionID string, limit int, before string) ([]domain.Turn, error) {
	if _, err := l.Session(ctx, sessionID); err != nil {
		return nil, err
	}
	turns, err := l.store.GetTurns(ctx, sessionID, limit, before)
	if err != nil {
		return nil, fmt.Errorf("failed to get turns: %w", err)
	}
	return turns, nil
}

// ToolCalls returns every tool call recorded for a session.
func (l *Ledger) ToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCallRecord, error) {
	records, err := l.store.GetToolCalls(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool calls: %w", err)
	}
	return records, nil
}

// Plan returns a plan or ErrPlanNotFound.
func (l *Ledger) Plan(ctx context.Context, planID string) (*domain.TravelPlan, error) {
	plan, err := l.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// PlansBySession lists the plans that reference a session.
func (l *Ledger) PlansBySession(ctx context.Context, sessionID string) ([]domain.TravelPlan, error) {
	plans, err := l.store.ListPlans(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// Title derives a session title from a user message.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) > titleMaxRunes {
		return string(r[:titleMaxRunes])
	}
	return text
}
