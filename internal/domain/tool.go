package domain

import (
	"encoding/json"
	"time"
)

// ToolCallRecord is the audit entry for one capability invocation.
type ToolCallRecord struct {
	LogID           string          `json:"log_id"`
	SessionID       string          `json:"session_id"`
	ToolName        string          `json:"tool_name"`
	InputParams     json.RawMessage `json:"input_params,omitempty"`
	OutputResult    json.RawMessage `json:"output_result,omitempty"`
	Status          ToolCallStatus  `json:"status"`
	FailureKind     OutcomeStatus   `json:"failure_kind,omitempty"`
	Error           string          `json:"error,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Outcome is what a single capability invocation produced.
type Outcome struct {
	Status  OutcomeStatus
	Payload *ToolPayload
	Err     error
	Elapsed time.Duration
}

// OK reports whether the outcome carries a usable result.
func (o Outcome) OK() bool {
	return o.Status == OutcomeSuccess && o.Payload != nil
}
