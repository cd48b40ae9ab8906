// Package action defines the shape of a pluggable side-effecting operation:
// its declared schema, risk level, and the Handler contract the engine calls
// through to validate and execute it.
package action

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RiskLevel classifies how much damage an action can do, driving whether it
// runs automatically or waits for a human approval.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Spec describes an action's identity and contract. ParamsSchema and
// ResultSchema are compiled schemas supplied by the handler; this package
// and the engine carry them for action listings and do not validate params
// against them.
type Spec struct {
	Name             string
	Version          string
	Description      string
	ParamsSchema     *jsonschema.Schema
	ResultSchema     *jsonschema.Schema
	Risk             RiskLevel
	RequiresApproval bool
	Capabilities     []string
}

// specDoc is the JSON-serializable projection of Spec used for
// ActionListResultPayload and for compiling schemas from literal JSON.
type specDoc struct {
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	Description      string          `json:"description"`
	ParamsSchema     json.RawMessage `json:"params_schema"`
	ResultSchema     json.RawMessage `json:"result_schema"`
	Risk             RiskLevel       `json:"risk"`
	RequiresApproval bool            `json:"requires_approval"`
	Capabilities     []string        `json:"capabilities"`
}

// MarshalJSON projects Spec to the wire shape, re-expanding the compiled
// schemas back to their source JSON.
func (s Spec) MarshalJSON() ([]byte, error) {
	doc := specDoc{
		Name:             s.Name,
		Version:          s.Version,
		Description:      s.Description,
		Risk:             s.Risk,
		RequiresApproval: s.RequiresApproval,
		Capabilities:     s.Capabilities,
	}
	if s.ParamsSchema != nil {
		if raw, err := json.Marshal(schemaSource(s.ParamsSchema)); err == nil {
			doc.ParamsSchema = raw
		}
	}
	if s.ResultSchema != nil {
		if raw, err := json.Marshal(schemaSource(s.ResultSchema)); err == nil {
			doc.ResultSchema = raw
		}
	}
	return json.Marshal(doc)
}

// schemaSource extracts a rough JSON-compatible view of a compiled schema for
// re-serialization; jsonschema.Schema does not round-trip exactly, so this is
// only used for display/listing purposes, never for re-compiling.
func schemaSource(s *jsonschema.Schema) map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{}
	if s.Types != nil {
		out["type"] = s.Types.ToStrings()
	}
	return out
}

// Request is a planner's decision to invoke a named action with params.
type Request struct {
	Name     string          `json:"name"`
	Params   json.RawMessage `json:"params"`
	RawInput string          `json:"raw_input"`
}

// Outcome is what a Handler returns after a successful Execute.
type Outcome struct {
	Summary string          `json:"summary"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Context carries the ambient state a Handler needs: the working directory,
// whether side effects should be suppressed, and the path-safety policy.
type Context struct {
	Cwd    string
	DryRun bool
	Policy PathPolicy
}

// PathPolicy is satisfied by riskpolicy.Policy; defined here to avoid a
// dependency cycle between action and riskpolicy.
type PathPolicy interface {
	CheckPathAllowed(path string) error
}

// Handler implements one action: it declares its Spec, validates params
// ahead of execution (including any side-effect-free checks like "does this
// path exist"), and executes for real.
type Handler interface {
	Name() string
	Spec() Spec
	Validate(ctx context.Context, actx Context, params json.RawMessage) error
	Execute(ctx context.Context, actx Context, params json.RawMessage) (Outcome, error)
}
