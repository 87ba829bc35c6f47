// Package invoker runs capabilities under a timeout and turns every call into
// exactly one normalized outcome and one audit record.
package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xiaot623/gogo/tripagent/internal/domain"
	"github.com/xiaot623/gogo/tripagent/internal/metrics"
	"github.com/xiaot623/gogo/tripagent/internal/policy"
	"github.com/xiaot623/gogo/tripagent/internal/tools"
)

var (
	// ErrInvalidTimeout is reported for calls made without a positive timeout.
	ErrInvalidTimeout = errors.New("timeout must be positive")
	// ErrDenied is reported when the policy refuses a capability.
	ErrDenied = errors.New("capability denied by policy")
)

// Recorder persists tool call records.
type Recorder interface {
	RecordToolCall(ctx context.Context, sessionID string, rec domain.ToolCallRecord) error
}

// PolicyEvaluator decides whether a capability may run.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, toolName, sessionID string) (policy.Decision, error)
}

// Call describes one capability invocation.
type Call struct {
	SessionID string
	Tool      string
	Input     any
	Timeout   time.Duration
}

// Invoker executes capabilities.
type Invoker struct {
	executor tools.Executor
	recorder Recorder
	policy   PolicyEvaluator
	metrics  *metrics.Collector
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithPolicy gates every call through p.
func WithPolicy(p PolicyEvaluator) Option {
	return func(i *Invoker) { i.policy = p }
}

// WithMetrics reports invocations to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(i *Invoker) { i.metrics = c }
}

// New creates an invoker.
func New(executor tools.Executor, recorder Recorder, logger *zap.Logger, opts ...Option) *Invoker {
	i := &Invoker{
		executor: executor,
		recorder: recorder,
		logger:   logger.Named("invoker"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

type execResult struct {
	out json.RawMessage
	err error
}

// Invoke runs the capability and returns within the call's timeout even when
// the capability ignores its context. A late result is discarded.
func (i *Invoker) Invoke(ctx context.Context, call Call) domain.Outcome {
	ctx, span := otel.Tracer(metrics.ServiceName).Start(ctx, "tool.invoke")
	defer span.End()

	start := i.now()
	args, err := json.Marshal(call.Input)
	if err != nil {
		return i.finish(ctx, span, call, args, nil, start, domain.OutcomeInvocationError,
			fmt.Errorf("encode input: %w", err))
	}

	if call.Timeout <= 0 {
		return i.finish(ctx, span, call, args, nil, start, domain.OutcomeInvocationError, ErrInvalidTimeout)
	}

	kind, ok := domain.KindOf(call.Tool)
	if !ok {
		return i.finish(ctx, span, call, args, nil, start, domain.OutcomeUnavailable,
			fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Tool))
	}

	if i.policy != nil {
		decision, err := i.policy.Evaluate(ctx, call.Tool, call.SessionID)
		if err != nil {
			return i.finish(ctx, span, call, args, nil, start, domain.OutcomeUnavailable,
				fmt.Errorf("policy evaluation failed: %w", err))
		}
		if !decision.Allowed() {
			return i.finish(ctx, span, call, args, nil, start, domain.OutcomeUnavailable,
				fmt.Errorf("%w: %s", ErrDenied, decision.Reason))
		}
	}

	if err := ctx.Err(); err != nil {
		return i.finish(ctx, span, call, args, nil, start, domain.OutcomeTimeout,
			fmt.Errorf("capability %s not started: %w", call.Tool, err))
	}

	callCtx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		out, err := i.executor.Execute(callCtx, call.Tool, args)
		done <- execResult{out: out, err: err}
	}()

	var res execResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		return i.finish(ctx, span, call, args, nil, start, domain.OutcomeTimeout,
			fmt.Errorf("capability %s timed out after %s: %w", call.Tool, call.Timeout, callCtx.Err()))
	}

	if res.err != nil {
		return i.finish(ctx, span, call, args, nil, start, classify(res.err), res.err)
	}

	payload, err := domain.DecodePayload(kind, res.out)
	if err != nil {
		return i.finish(ctx, span, call, args, res.out, start, domain.OutcomeInvocationError, err)
	}

	outcome := i.finish(ctx, span, call, args, res.out, start, domain.OutcomeSuccess, nil)
	outcome.Payload = payload
	return outcome
}

// classify maps an executor error onto an outcome status.
func classify(err error) domain.OutcomeStatus {
	switch {
	case errors.Is(err, tools.ErrUnknownTool), errors.Is(err, tools.ErrUnavailable):
		return domain.OutcomeUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.OutcomeTimeout
	}
	return domain.OutcomeInvocationError
}

func (i *Invoker) finish(ctx context.Context, span trace.Span, call Call, args, out json.RawMessage, start time.Time, status domain.OutcomeStatus, callErr error) domain.Outcome {
	elapsed := i.now().Sub(start)

	rec := domain.ToolCallRecord{
		LogID:           "tc_" + uuid.New().String(),
		SessionID:       call.SessionID,
		ToolName:        call.Tool,
		InputParams:     args,
		Status:          status.RecordStatus(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		CreatedAt:       start,
	}
	if status == domain.OutcomeSuccess {
		rec.OutputResult = out
	} else {
		rec.FailureKind = status
		if callErr != nil {
			rec.Error = callErr.Error()
		}
	}

	// The record is written even when the caller's context is already done.
	if i.recorder != nil {
		if err := i.recorder.RecordToolCall(context.WithoutCancel(ctx), call.SessionID, rec); err != nil {
			i.logger.Error("failed to record tool call",
				zap.String("session_id", call.SessionID),
				zap.String("tool", call.Tool),
				zap.Error(err))
		}
	}

	i.metrics.ObserveTool(call.Tool, string(status), elapsed)
	span.SetAttributes(
		attribute.String("tool", call.Tool),
		attribute.String("status", string(status)),
		attribute.String("session_id", call.SessionID),
	)
	if status != domain.OutcomeSuccess {
		span.SetStatus(codes.Error, string(status))
		i.logger.Warn("tool invocation failed",
			zap.String("session_id", call.SessionID),
			zap.String("tool", call.Tool),
			zap.String("status", string(status)),
			zap.Duration("elapsed", elapsed),
			zap.Error(callErr))
	}

	return domain.Outcome{Status: status, Err: callErr, Elapsed: elapsed}
}
