package llm

import (
	"go.uber.org/zap"
)

// NewLLMClient returns the mock client in MOCK mode and a real client otherwise.
func NewLLMClient(mock bool, cfg Config, logger *zap.Logger) LLMClient {
	if mock {
		logger.Info("MOCK mode detected, using mock LLM client")
		return NewMockClient()
	}
	return NewClient(cfg, logger)
}
