package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
)

func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.ledger.Session(ctx, sessionID)
	if err != nil {
		return nil, notFound(err, "session", sessionID)
	}
	return session, nil
}

// GetSessionHistory returns up to limit turns, oldest first. before pages
// backwards from a turn id.
func (s *Service) GetSessionHistory(ctx context.Context, sessionID string, limit int, before string) ([]domain.Turn, error) {
	turns, err := s.ledger.Turns(ctx, sessionID, limit, before)
	if err != nil {
		return nil, notFound(err, "session", sessionID)
	}
	return turns, nil
}

func (s *Service) GetPlan(ctx context.Context, planID string) (*domain.TravelPlan, error) {
	plan, err := s.ledger.Plan(ctx, planID)
	if err != nil {
		return nil, notFound(err, "plan", planID)
	}
	return plan, nil
}

func (s *Service) ListPlans(ctx context.Context, sessionID string) ([]domain.TravelPlan, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.ledger.PlansBySession(ctx, sessionID)
}

func (s *Service) GetToolCalls(ctx context.Context, sessionID string) ([]domain.ToolCallRecord, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.ledger.ToolCalls(ctx, sessionID)
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, ledger.ErrSessionNotFound) || errors.Is(err, ledger.ErrPlanNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return err
}
