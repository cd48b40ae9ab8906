package approval

import "strings"

// Decision is the outcome of parsing a chat reply as an approval command.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionDeny
	// DecisionApproveAll is approve plus "and also auto-approve the rest of
	// the plan this pending action belongs to, if any" — set explicitly via
	// "approve-all"/"approve_all ..." or implied by a bare affirmation when
	// the pending action turns out to be part of a plan.
	DecisionApproveAll
	// DecisionAffirm is a bare affirmation word ("yes", "好的", ...): approve
	// a standalone pending action, or approve-all when it is a plan step.
	// The caller resolves it once it knows which.
	DecisionAffirm
)

// affirmations are the bare yes-words the spec calls out, in English and
// Chinese; any of these resolves the sender's latest pending approval.
var affirmations = map[string]bool{
	"yes": true, "y": true, "ok": true,
	"好的": true, "好": true, "可以": true, "行": true, "嗯": true,
}

var negations = map[string]bool{
	"no": true, "n": true, "deny": true, "reject": true,
}

// ParseCommand recognizes a bare affirmation/negation word (resolving the
// sender's latest pending approval) or an explicit "approve <id>" /
// "deny <id>" / "approve-all <id>" (also spelled "approve_all") form. It
// returns ok=false for anything else, letting the caller fall through to
// other handling.
func ParseCommand(input string) (decision Decision, id string, ok bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, "", false
	}
	lower := strings.ToLower(trimmed)

	if lower == "approve" {
		return DecisionApprove, "", true
	}
	if affirmations[lower] {
		return DecisionAffirm, "", true
	}
	if negations[lower] {
		return DecisionDeny, "", true
	}

	for _, prefix := range []string{"approve-all ", "approve_all "} {
		if rest, ok := strings.CutPrefix(lower, prefix); ok {
			return DecisionApproveAll, strings.TrimSpace(rest), true
		}
	}
	if lower == "approve-all" || lower == "approve_all" {
		return DecisionApproveAll, "", true
	}
	if rest, ok := strings.CutPrefix(lower, "approve "); ok {
		return DecisionApprove, strings.TrimSpace(rest), true
	}
	if rest, ok := strings.CutPrefix(lower, "deny "); ok {
		return DecisionDeny, strings.TrimSpace(rest), true
	}

	return 0, "", false
}
