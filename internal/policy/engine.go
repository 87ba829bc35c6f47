// Package policy gates capability invocations with an OPA Rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is the document the policy is evaluated against.
type Input struct {
	ToolName  string   `json:"tool_name"`
	SessionID string   `json:"session_id"`
	DenyTools []string `json:"deny_tools"`
}

// Decision is the evaluated verdict for one invocation.
type Decision struct {
	Decision string
	Reason   string
}

// Allowed reports whether the invocation may proceed.
func (d Decision) Allowed() bool {
	return d.Decision != DecisionDeny
}

// Engine is the OPA policy engine.
type Engine struct {
	query     rego.PreparedEvalQuery
	denyTools []string
}

// NewEngine creates a new policy engine with the given policy content.
// denyTools is passed to the policy as input.deny_tools.
func NewEngine(ctx context.Context, policyContent string, denyTools []string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.capability_policy.decision"),
		rego.Module("capability_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	if denyTools == nil {
		denyTools = []string{}
	}
	return &Engine{query: query, denyTools: denyTools}, nil
}

// Evaluate checks whether a capability may be invoked for a session.
// The policy may return a string or an object {decision, reason}.
func (e *Engine) Evaluate(ctx context.Context, toolName, sessionID string) (Decision, error) {
	input := Input{ToolName: toolName, SessionID: sessionID, DenyTools: e.denyTools}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Decision: DecisionAllow, Reason: "default"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Decision: val}, nil
	case map[string]any:
		d := Decision{Decision: DecisionAllow}
		if s, ok := val["decision"].(string); ok {
			d.Decision = s
		}
		if s, ok := val["reason"].(string); ok {
			d.Reason = s
		}
		return d, nil
	}
	return Decision{Decision: DecisionAllow, Reason: "unexpected return type"}, nil
}

// DefaultPolicy denies capabilities listed in input.deny_tools.
const DefaultPolicy = `
package capability_policy

default decision = {"decision": "allow"}

decision = {"decision": "deny", "reason": "capability disabled by configuration"} if {
	input.tool_name in input.deny_tools
}
`
