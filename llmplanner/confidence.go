package llmplanner

const (
	// HighConfidenceThreshold and above, a Decision passes through unchanged.
	HighConfidenceThreshold = 0.8
	// MidConfidenceThreshold and above (but below High) rewrites an Action
	// or Plan decision into a yes/no confirmation prompt rather than acting
	// on it directly.
	MidConfidenceThreshold = 0.5
)

// ApplyConfidencePolicy is an additive refinement layered on top of a
// Decision that reports Confidence: below MidConfidenceThreshold it is
// downgraded to Unknown with a clarification hint; in the mid band it is
// rewritten into a confirmation-seeking NeedInput that carries the original
// action/params (or plan steps); the engine keeps no pending entry for such a
// NeedInput, so a following "yes" does not run the action; at or above
// HighConfidenceThreshold it passes through unchanged. A Decision with no
// Confidence reported bypasses this entirely.
func ApplyConfidencePolicy(d Decision) Decision {
	if d.Confidence == nil {
		return d
	}
	confidence := *d.Confidence

	if confidence >= HighConfidenceThreshold {
		return d
	}

	if confidence >= MidConfidenceThreshold {
		switch d.Kind {
		case DecisionAction:
			return Decision{
				Kind:       DecisionNeedInput,
				Prompt:     "confirm: run " + d.Action.Name + "? (yes/no)",
				NeedAction: d.Action.Name,
				NeedParams: d.Action.Params,
				Confidence: d.Confidence,
			}
		case DecisionPlan:
			return Decision{
				Kind:        DecisionNeedInput,
				Prompt:      "confirm: run this multi-step plan? (yes/no)",
				Confidence:  d.Confidence,
				Steps:       d.Steps,
				PlanMessage: d.PlanMessage,
			}
		default:
			return d
		}
	}

	return Decision{
		Kind:       DecisionUnknown,
		Message:    "not sure what you mean — can you be more specific?",
		Confidence: d.Confidence,
	}
}
