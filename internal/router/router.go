// Package router decides how a user turn is handled.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/extract"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
	"github.com/xiaot623/gogo/tripagent/internal/tools"
)

// DefaultTimeout bounds the intent classifier call.
const DefaultTimeout = 3 * time.Second

// Invoker runs a capability.
type Invoker interface {
	Invoke(ctx context.Context, call invoker.Call) domain.Outcome
}

// Router classifies turns into strategies.
type Router struct {
	invoker Invoker
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a router.
func New(inv Invoker, timeout time.Duration, logger *zap.Logger) *Router {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{
		invoker: inv,
		timeout: timeout,
		logger:  logger.Named("router"),
		now:     time.Now,
	}
}

// Classify returns the strategy for text. It calls the classifier once and
// falls back to general chat on any failure.
func (r *Router) Classify(ctx context.Context, sessionID, text string, prior domain.SessionContext) domain.Strategy {
	outcome := r.invoker.Invoke(ctx, invoker.Call{
		SessionID: sessionID,
		Tool:      domain.ToolIntentClassifier,
		Input:     domain.IntentInput{Text: text, PriorIntent: prior.LastIntent},
		Timeout:   r.timeout,
	})

	strategy := domain.StrategyGeneralChat
	switch {
	case !outcome.OK() || outcome.Payload.Intent == nil:
		r.logger.Warn("intent classification failed, falling back to general chat",
			zap.String("session_id", sessionID),
			zap.String("status", string(outcome.Status)),
			zap.Error(outcome.Err))
	default:
		mapped, ok := mapLabel(outcome.Payload.Intent.Label)
		if !ok {
			r.logger.Warn("unknown intent label, falling back to general chat",
				zap.String("session_id", sessionID),
				zap.String("label", outcome.Payload.Intent.Label))
		} else {
			strategy = mapped
		}
	}

	// An answer to a clarification question keeps the planning path.
	if strategy == domain.StrategyGeneralChat && prior.Extracting() {
		if extract.Parse(text, r.now()).MentionsTrip() {
			r.logger.Debug("routing clarification answer to trip planning", zap.String("session_id", sessionID))
			strategy = domain.StrategyTripPlanning
		}
	}
	return strategy
}

func mapLabel(label string) (domain.Strategy, bool) {
	switch label {
	case tools.LabelGeneralChat:
		return domain.StrategyGeneralChat, true
	case tools.LabelInfoQuery:
		return domain.StrategyInfoQuery, true
	case tools.LabelTripPlanning, tools.LabelPlanModification:
		return domain.StrategyTripPlanning, true
	}
	return "", false
}
