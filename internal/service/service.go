// Package service runs a chat turn end to end: routing, trip extraction,
// enrichment, assembly and the session record.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/adapter/llm"
	"github.com/xiaot623/gogo/tripagent/internal/config"
	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/enrich"
	"github.com/xiaot623/gogo/tripagent/internal/extract"
	"github.com/xiaot623/gogo/tripagent/internal/invoker"
	"github.com/xiaot623/gogo/tripagent/internal/itinerary"
	"github.com/xiaot623/gogo/tripagent/internal/ledger"
	"github.com/xiaot623/gogo/tripagent/internal/metrics"
	"github.com/xiaot623/gogo/tripagent/internal/router"
)

var (
	ErrEmptyTurn   = errors.New("turn text is empty")
	ErrSessionBusy = errors.New("session is busy with another turn")
	ErrNotFound    = errors.New("not found")
)

// defaultUserID owns sessions created without an authenticated user.
const defaultUserID = "default_user"

// Invoker runs a capability.
type Invoker interface {
	Invoke(ctx context.Context, call invoker.Call) domain.Outcome
}

// Config holds the service tunables.
type Config struct {
	IntentTimeout        time.Duration
	ToolTimeout          time.Duration
	EnrichDeadline       time.Duration
	GenerateTimeout      time.Duration
	LockWait             time.Duration
	MaxConcurrency       int
	MaxTripDays          int
	TransportCost        int64
	MaxAttractionsPerDay int
	StreamChunkRunes     int
	// HistoryLimit is the number of past turns sent to the model.
	HistoryLimit int
	// LLMSuggestions asks the model to write a plan's overall suggestions.
	LLMSuggestions bool
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		IntentTimeout:        router.DefaultTimeout,
		ToolTimeout:          8 * time.Second,
		EnrichDeadline:       20 * time.Second,
		GenerateTimeout:      15 * time.Second,
		MaxConcurrency:       8,
		MaxTripDays:          extract.DefaultMaxDays,
		TransportCost:        itinerary.DefaultOptions().TransportCost,
		MaxAttractionsPerDay: itinerary.DefaultOptions().MaxAttractionsPerDay,
		StreamChunkRunes:     16,
		HistoryLimit:         20,
	}
}

// ConfigFrom maps the process configuration onto the service tunables.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.IntentTimeout = cfg.IntentTimeout
	c.ToolTimeout = cfg.ToolTimeout
	c.EnrichDeadline = cfg.EnrichDeadline
	c.GenerateTimeout = cfg.GenerateTimeout
	c.LockWait = cfg.SessionLockWait
	c.MaxConcurrency = cfg.EnrichMaxConcurrency
	c.MaxTripDays = cfg.MaxTripDays
	c.TransportCost = cfg.TransportFlatCost
	c.StreamChunkRunes = cfg.StreamChunkRunes
	c.LLMSuggestions = !cfg.MockMode()
	return c
}

// Service handles chat turns.
type Service struct {
	ledger    *ledger.Ledger
	router    *router.Router
	extractor *extract.Extractor
	enricher  *enrich.Coordinator
	llm       llm.LLMClient
	metrics   *metrics.Collector
	locks     *keyedLock
	cfg       Config
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics reports turns to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock replaces time.Now, used to resolve relative dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New wires a service. inv must record its calls into l.
func New(l *ledger.Ledger, inv Invoker, llmClient llm.LLMClient, cfg Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		ledger:    l,
		router:    router.New(inv, cfg.IntentTimeout, logger),
		extractor: extract.New(cfg.MaxTripDays),
		enricher: enrich.New(inv, enrich.Config{
			ToolTimeout:    cfg.ToolTimeout,
			Deadline:       cfg.EnrichDeadline,
			MaxConcurrency: cfg.MaxConcurrency,
		}, logger),
		llm:    llmClient,
		locks:  newKeyedLock(),
		cfg:    cfg,
		logger: logger.Named("service"),
		tracer: otel.Tracer("tripagent/service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return "sess_" + uuid.New().String()[:8]
}
