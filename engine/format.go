package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/preflight"
)

// formatApprovalPrompt renders the message a human sees when an action
// pauses for approval: the action name, its description, risk, dry-run
// state, the preflight summary, a compact rendering of up to 4 params, and
// reply instructions — "approve-all" is only mentioned when the action is
// one step of a larger plan.
func formatApprovalPrompt(spec action.Spec, params json.RawMessage, actx action.Context, report preflight.Report, approvalID string, partOfPlan bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "需要审批 — run %q (%s risk)", spec.Name, spec.Risk)
	if actx.DryRun {
		b.WriteString(" [dry-run]")
	}
	b.WriteString("\n")
	if spec.Description != "" {
		fmt.Fprintf(&b, "%s\n", spec.Description)
	}
	fmt.Fprintf(&b, "preflight: %s\n", report.Summary())
	if compact := formatParamsCompact(params); compact != "" {
		fmt.Fprintf(&b, "params: %s\n", compact)
	}
	fmt.Fprintf(&b, "Reply \"approve %s\" or \"deny %s\"", approvalID, approvalID)
	if partOfPlan {
		fmt.Fprintf(&b, " or \"approve-all %s\" to run the rest of the plan without asking again", approvalID)
	}
	b.WriteString(" (or just \"yes\"/\"no\" to resolve your latest pending approval).")
	return b.String()
}

// formatParamsCompact renders up to 4 key=value pairs from params (a JSON
// object), appending "..." if more were present, and compacting any
// individual value through compactValue.
func formatParamsCompact(params json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	result := gjson.ParseBytes(params)
	if !result.IsObject() {
		return ""
	}

	const maxParams = 4
	var pairs []string
	total := 0
	result.ForEach(func(key, val gjson.Result) bool {
		total++
		if len(pairs) < maxParams {
			pairs = append(pairs, fmt.Sprintf("%s=%s", key.String(), compactValue(val.String())))
		}
		return true
	})
	if total == 0 {
		return ""
	}
	joined := strings.Join(pairs, ", ")
	if total > maxParams {
		joined += ", ..."
	}
	return joined
}

// compactValue truncates any value longer than 60 characters to its first
// 57 characters plus "...".
func compactValue(raw string) string {
	const maxLen = 60
	if len(raw) <= maxLen {
		return raw
	}
	return raw[:maxLen-3] + "..."
}
