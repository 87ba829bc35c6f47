package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/adapter/llm"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/enrich"
	"github.com/xiaot623/gogo/tripagent/internal/extract"
	"github.com/xiaot623/gogo/tripagent/internal/itinerary"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
)

// TurnResult is the outcome of one handled turn.
type TurnResult struct {
	SessionID     string              `json:"session_id"`
	AssistantText string              `json:"assistant_text"`
	Strategy      domain.Strategy     `json:"strategy"`
	State         domain.SessionState `json:"state"`
	Plan          *domain.TravelPlan  `json:"plan,omitempty"`
	Missing       []string            `json:"missing_fields,omitempty"`
	// Retryable is set when planning failed for a transient reason.
	Retryable bool `json:"retryable,omitempty"`
}

type reply struct {
	text      string
	plan      *domain.TravelPlan
	missing   []string
	retryable bool
	apology   bool
}

// HandleTurn processes one user message. An empty sessionID starts a new
// session. Turns of the same session never run concurrently.
func (s *Service) HandleTurn(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTurn
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	release, err := s.locks.acquire(ctx, sessionID, s.cfg.LockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx, span := s.tracer.Start(ctx, "turn.handle",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()
	start := time.Now()

	sc, err := s.loadContext(ctx, sessionID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.ledger.AppendTurn(ctx, sessionID, &domain.Turn{Role: domain.RoleUser, Content: text}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	strategy := s.router.Classify(ctx, sessionID, text, sc)
	sc.LastIntent = strategy
	span.SetAttributes(attribute.String("strategy", string(strategy)))

	var r reply
	if strategy == domain.StrategyTripPlanning {
		r = s.planTrip(ctx, sessionID, text, &sc)
	} else {
		r = s.chat(ctx, sessionID, strategy)
	}

	if err := s.ledger.UpdateContext(ctx, sessionID, sc); err != nil {
		s.logger.Error("failed to save session context", zap.String("session_id", sessionID), zap.Error(err))
	}

	meta := domain.TurnMetadata{
		Intent:    strategy,
		Missing:   r.missing,
		Retryable: r.retryable,
		Apology:   r.apology,
	}
	if r.plan != nil {
		meta.PlanID = r.plan.PlanID
	}
	metadata, _ := json.Marshal(meta)
	assistant := &domain.Turn{Role: domain.RoleAssistant, Content: r.text, Metadata: metadata}
	if err := s.ledger.AppendTurn(ctx, sessionID, assistant); err != nil {
		s.logger.Error("failed to save assistant turn", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.metrics.ObserveTurn(string(strategy), time.Since(start))
	s.logger.Info("turn handled",
		zap.String("session_id", sessionID),
		zap.String("strategy", string(strategy)),
		zap.Bool("plan", r.plan != nil),
		zap.Duration("elapsed", time.Since(start)))

	return &TurnResult{
		SessionID:     sessionID,
		AssistantText: r.text,
		Strategy:      strategy,
		State:         sc.State,
		Plan:          r.plan,
		Missing:       r.missing,
		Retryable:     r.retryable,
	}, nil
}

// loadContext returns the session context, creating the session on first use.
// A session left mid-plan by a crash is put back to AWAITING_INPUT.
func (s *Service) loadContext(ctx context.Context, sessionID string) (domain.SessionContext, error) {
	sc, err := s.ledger.Context(ctx, sessionID)
	if errors.Is(err, ledger.ErrSessionNotFound) {
		session, createErr := s.ledger.EnsureSession(ctx, sessionID, defaultUserID)
		if createErr != nil {
			return domain.SessionContext{}, createErr
		}
		sc, err = session.Context, nil
	}
	if err != nil {
		return domain.SessionContext{}, err
	}

	if sc.State != domain.StateAwaitingInput {
		if sc.State != "" {
			s.logger.Warn("recovering session from interrupted turn",
				zap.String("session_id", sessionID),
				zap.String("state", string(sc.State)))
		}
		sc.State = domain.StateAwaitingInput
	}
	return sc, nil
}

// enter moves the session to state to. Intermediate states are saved so a
// reader can see a plan in progress.
func (s *Service) enter(ctx context.Context, sessionID string, sc *domain.SessionContext, to domain.SessionState) {
	if err := transition(sc, to); err != nil {
		s.logger.Error("forcing session state", zap.String("session_id", sessionID), zap.Error(err))
		sc.State = to
	}
	if to == domain.StateAwaitingInput {
		return
	}
	if err := s.ledger.UpdateContext(ctx, sessionID, *sc); err != nil {
		s.logger.Warn("failed to save session state",
			zap.String("session_id", sessionID),
			zap.String("state", string(to)),
			zap.Error(err))
	}
}

func (s *Service) planTrip(ctx context.Context, sessionID, text string, sc *domain.SessionContext) reply {
	s.enter(ctx, sessionID, sc, domain.StateExtracting)

	var existing domain.TripRequest
	if sc.PendingTrip != nil {
		existing = *sc.PendingTrip
	}
	extracted := s.extractor.Extract(text, existing, s.now())
	req := extracted.Request
	sc.PendingTrip = &req

	if !req.Complete() {
		s.enter(ctx, sessionID, sc, domain.StateAwaitingInput)
		return reply{
			text:    withNotes(extracted.Notes, extract.ClarificationText(extracted.Missing)),
			missing: extracted.Missing,
		}
	}

	s.enter(ctx, sessionID, sc, domain.StateEnriching)
	result, err := s.enricher.Enrich(ctx, sessionID, req)
	if err != nil {
		s.enter(ctx, sessionID, sc, domain.StateAwaitingInput)
		if errors.Is(err, enrich.ErrEnrichmentFailed) {
			// The request stays pending so the next planning turn can retry it.
			s.logger.Warn("no lookup succeeded, plan not generated",
				zap.String("session_id", sessionID),
				zap.String("destination", req.Destination))
			return reply{text: retryReply, retryable: true, apology: true}
		}
		return s.abort(sessionID, sc, "enrichment failed", err)
	}

	s.enter(ctx, sessionID, sc, domain.StateAssembling)
	plan, err := itinerary.Assemble(req, result.Days, itinerary.Options{
		PlanID:               "plan_" + uuid.New().String(),
		SessionID:            sessionID,
		CreatedAt:            s.now(),
		TransportCost:        s.cfg.TransportCost,
		MaxAttractionsPerDay: s.cfg.MaxAttractionsPerDay,
	})
	if err != nil {
		s.enter(ctx, sessionID, sc, domain.StateAwaitingInput)
		return s.abort(sessionID, sc, "assembly failed", err)
	}
	s.suggest(ctx, plan)

	if err := s.ledger.LinkPlan(ctx, sessionID, plan); err != nil {
		s.enter(ctx, sessionID, sc, domain.StateAwaitingInput)
		return s.abort(sessionID, sc, "plan link failed", err)
	}

	s.enter(ctx, sessionID, sc, domain.StatePlanLinked)
	sc.PendingTrip = nil
	s.enter(ctx, sessionID, sc, domain.StateAwaitingInput)

	return reply{text: withNotes(extracted.Notes, planText(plan)), plan: plan}
}

// abort drops the pending request after an internal failure. The cause is
// logged and never shown to the user.
func (s *Service) abort(sessionID string, sc *domain.SessionContext, msg string, err error) reply {
	s.logger.Error(msg, zap.String("session_id", sessionID), zap.Error(err))
	sc.PendingTrip = nil
	return reply{text: apologyReply, apology: true}
}

// suggest replaces the plan's overall suggestions with a model-written one
// when available. Failures keep the deterministic summary.
func (s *Service) suggest(ctx context.Context, plan *domain.TravelPlan) {
	if !s.cfg.LLMSuggestions {
		return
	}
	gctx, cancel := s.generateContext(ctx)
	defer cancel()

	text, err := s.llm.Chat(gctx, []llm.Message{
		{Role: llm.RoleSystem, Content: suggestionPrompt},
		{Role: llm.RoleUser, Content: planText(plan)},
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.logger.Warn("overall suggestions unavailable, keeping summary",
			zap.String("plan_id", plan.PlanID), zap.Error(err))
		return
	}
	plan.OverallSuggestions = text
}

func (s *Service) chat(ctx context.Context, sessionID string, strategy domain.Strategy) reply {
	history, err := s.ledger.Turns(ctx, sessionID, s.cfg.HistoryLimit, "")
	if err != nil {
		s.logger.Warn("failed to load history", zap.String("session_id", sessionID), zap.Error(err))
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(strategy)})
	for _, turn := range history {
		role := llm.RoleUser
		if turn.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}

	gctx, cancel := s.generateContext(ctx)
	defer cancel()
	text, err := s.llm.Chat(gctx, messages)
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		s.logger.Warn("response generation failed, using fallback reply",
			zap.String("session_id", sessionID), zap.Error(err))
		return reply{text: fallbackReply(strategy)}
	}
	return reply{text: text}
}

func (s *Service) generateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.GenerateTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.GenerateTimeout)
}

func planText(plan *domain.TravelPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "已为你生成「%s」（%s 至 %s）：\n", plan.Title, plan.StartDate, plan.EndDate)
	for _, day := range plan.Days {
		b.WriteString(day.Description)
		if day.Hotel != nil {
			fmt.Fprintf(&b, "；入住%s", day.Hotel.Name)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "预计总花费%d元（景点%d元，住宿%d元，餐饮%d元，交通%d元）。",
		plan.Budget.Total,
		plan.Budget.TotalAttractions,
		plan.Budget.TotalHotels,
		plan.Budget.TotalMeals,
		plan.Budget.TotalTransportation)
	if plan.OverallSuggestions != "" {
		b.WriteString("\n")
		b.WriteString(plan.OverallSuggestions)
	}
	return b.String()
}

func withNotes(notes []string, text string) string {
	if len(notes) == 0 {
		return text
	}
	return strings.Join(notes, "") + "\n" + text
}
