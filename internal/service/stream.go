package service

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// Chunk is one piece of a streamed assistant reply. The last chunk of a
// turn has Done set and carries no text.
type Chunk struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Text      string `json:"text,omitempty"`
	Done      bool   `json:"done,omitempty"`
	PlanID    string `json:"plan_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// ChunkSink receives the chunks of a reply in order.
type ChunkSink interface {
	Send(ctx context.Context, chunk Chunk) error
}

// ChunkSinkFunc adapts a function to ChunkSink.
type ChunkSinkFunc func(ctx context.Context, chunk Chunk) error

func (f ChunkSinkFunc) Send(ctx context.Context, chunk Chunk) error { return f(ctx, chunk) }

// HandleTurnStream handles the turn, then forwards the reply to sink. The
// turn is fully recorded before the first chunk is sent, so a failing sink
// loses only the delivery.
func (s *Service) HandleTurnStream(ctx context.Context, sessionID, text string, sink ChunkSink) (*TurnResult, error) {
	result, err := s.HandleTurn(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	parts := splitRunes(result.AssistantText, s.cfg.StreamChunkRunes)
	for i, part := range parts {
		if err := sink.Send(ctx, Chunk{SessionID: result.SessionID, Seq: i, Text: part}); err != nil {
			return result, fmt.Errorf("failed to send chunk %d: %w", i, err)
		}
	}

	done := Chunk{SessionID: result.SessionID, Seq: len(parts), Done: true, Retryable: result.Retryable}
	if result.Plan != nil {
		done.PlanID = result.Plan.PlanID
	}
	if err := sink.Send(ctx, done); err != nil {
		return result, fmt.Errorf("failed to send done chunk: %w", err)
	}
	return result, nil
}

// splitRunes cuts text into pieces of at most n runes.
func splitRunes(text string, n int) []string {
	if text == "" {
		return nil
	}
	r := []rune(text)
	if n <= 0 || len(r) <= n {
		return []string{text}
	}
	return lo.Map(lo.Chunk(r, n), func(c []rune, _ int) string { return string(c) })
}
