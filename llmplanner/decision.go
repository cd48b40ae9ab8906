// Package llmplanner adapts a pluggable LLM backend into a Decision the
// engine can act on, including the robust recovery pipeline needed because
// LLMs routinely wrap JSON in prose, reasoning traces, or code fences.
package llmplanner

import (
	"context"
	"encoding/json"

	"github.com/bdobrica/robit/action"
)

// ChatRole tags one message in a conversation transcript handed to the
// planner for context.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of conversation history.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// DecisionKind discriminates Decision.
type DecisionKind int

const (
	DecisionAction DecisionKind = iota
	DecisionNeedInput
	DecisionChat
	DecisionPlan
	DecisionUnknown
)

// PlanStep is one step of a multi-action Decision.Plan.
type PlanStep struct {
	ID               string
	Action           string
	Params           json.RawMessage
	Note             string
	RequiresApproval *bool
}

// Decision is the LLM planner's tagged-union response: exactly one of the
// fields matching Kind is meaningful.
type Decision struct {
	Kind DecisionKind

	// DecisionAction
	Action action.Request

	// DecisionNeedInput
	Prompt       string
	NeedAction   string
	NeedParams   json.RawMessage
	Missing      []string

	// DecisionChat / DecisionUnknown
	Message string

	// DecisionPlan
	Steps       []PlanStep
	PlanMessage string

	// Confidence is an optional [0,1] self-reported confidence, populated by
	// ParseDecision when the reply carries a "confidence" field. A nil
	// value means "not reported" and bypasses confidence gating entirely.
	Confidence *float64
}

// Planner is implemented by any LLM-backed decision source.
type Planner interface {
	PlanWithHistory(ctx context.Context, input string, actions []action.Spec, history []ChatMessage) (Decision, error)
}

// ScopedPlanner is implemented by a Planner that can hand back a variant of
// itself pinned to a different model/temperature, for backends supporting a
// per-room ConfigUpdatePayload.ProviderBinding override. A Planner that
// doesn't implement this is used as-is regardless of any binding.
type ScopedPlanner interface {
	Planner
	WithBinding(model string, temperature *float64) Planner
}
