// Package enrich fans out the per-day lookups of a trip and collects their
// outcomes.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
)

var (
	// ErrEnrichmentFailed is returned when every lookup failed. It is retryable.
	ErrEnrichmentFailed = errors.New("enrichment failed: no lookup succeeded")
	// ErrIncompleteRequest is returned for requests without destination or dates.
	ErrIncompleteRequest = errors.New("trip request is incomplete")
)

// Invoker runs a capability.
type Invoker interface {
	Invoke(ctx context.Context, call invoker.Call) domain.Outcome
}

// Config bounds an enrichment run.
type Config struct {
	ToolTimeout    time.Duration
	Deadline       time.Duration
	MaxConcurrency int
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		ToolTimeout:    8 * time.Second,
		Deadline:       20 * time.Second,
		MaxConcurrency: 8,
	}
}

// Result holds one partial day per trip day.
type Result struct {
	Days      map[int]*domain.PartialDayPlan
	Succeeded int
	Failed    int
}

// Coordinator runs the lookups for a trip concurrently.
type Coordinator struct {
	invoker Invoker
	cfg     Config
	logger  *zap.Logger
}

// New creates a coordinator.
func New(inv Invoker, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return &Coordinator{invoker: inv, cfg: cfg, logger: logger.Named("enrich")}
}

// Enrich runs one lookup per (day, category). A failed lookup only marks its
// slot; the run fails only when nothing succeeded.
func (c *Coordinator) Enrich(ctx context.Context, sessionID string, req domain.TripRequest) (*Result, error) {
	if !req.Complete() {
		return nil, ErrIncompleteRequest
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	res := &Result{Days: make(map[int]*domain.PartialDayPlan, req.DayCount)}
	for i := 0; i < req.DayCount; i++ {
		res.Days[i] = &domain.PartialDayPlan{
			DayIndex: i,
			Date:     req.StartDate.AddDays(i),
			Slots:    make(map[domain.Category]domain.SlotOutcome, len(domain.Categories)),
		}
	}

	var mu sync.Mutex
	collect := func(day int, cat domain.Category, out domain.Outcome) {
		slot := domain.SlotOutcome{Status: out.Status, Payload: out.Payload}
		if out.Err != nil {
			slot.Error = out.Err.Error()
		}
		mu.Lock()
		defer mu.Unlock()
		res.Days[day].Slots[cat] = slot
		if slot.OK() {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	sem := semaphore.NewWeighted(int64(c.cfg.MaxConcurrency))
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < req.DayCount; i++ {
		for _, cat := range domain.Categories {
			call := invoker.Call{
				SessionID: sessionID,
				Tool:      cat.ToolFor(),
				Input:     lookupInput(req, i, cat),
				Timeout:   c.cfg.ToolTimeout,
			}
			g.Go(func() error {
				// A task still queued at the deadline is invoked with the
				// expired context so it is recorded as a timeout.
				if err := sem.Acquire(gctx, 1); err == nil {
					defer sem.Release(1)
				}
				collect(i, cat, c.invoker.Invoke(gctx, call))
				return nil
			})
		}
	}
	_ = g.Wait()

	c.logger.Info("enrichment finished",
		zap.String("session_id", sessionID),
		zap.String("city", req.Destination),
		zap.Int("days", req.DayCount),
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed))

	if res.Succeeded == 0 {
		return res, fmt.Errorf("%w: %d lookups for %s", ErrEnrichmentFailed, res.Failed, req.Destination)
	}
	return res, nil
}

func lookupInput(req domain.TripRequest, day int, cat domain.Category) domain.EnrichInput {
	in := domain.EnrichInput{
		City:        req.Destination,
		Date:        req.StartDate.AddDays(day),
		DayIndex:    day,
		Preferences: req.Preferences,
	}
	if cat == domain.CategoryMeals {
		in.MealTypes = domain.MealTypes
	}
	return in
}
