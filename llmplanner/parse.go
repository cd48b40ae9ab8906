package llmplanner

import (
	"encoding/json"
	"strings"

	"github.com/bdobrica/robit/action"
)

// RetrySentinel is the exact message returned when no JSON payload could be
// recovered from a response that nonetheless looked like it was trying to be
// one. The engine matches on this string to trigger a single retry with a
// sterner prompt.
const RetrySentinel = "AI response format invalid; please retry."

// decisionPayload is the wire shape every recognized decision type decodes
// into before being dispatched into a Decision by kind.
type decisionPayload struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Action  string          `json:"action"`
	Params  json.RawMessage `json:"params"`
	Steps   []stepPayload   `json:"steps"`
	Missing []string        `json:"missing"`
	Message string          `json:"message"`
	Prompt  string          `json:"prompt"`

	// Confidence is an additive field: a reply may set it to drive
	// ApplyConfidencePolicy; replies that don't know about it simply omit
	// it.
	Confidence *float64 `json:"confidence"`
}

type stepPayload struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Action           string          `json:"action"`
	Params           json.RawMessage `json:"params"`
	Note             string          `json:"note"`
	RequiresApproval *bool           `json:"requires_approval"`
}

// ParseDecision recovers a Decision from raw LLM output, tolerating
// reasoning-trace wrapping, markdown code fences, trailing commas, and
// leading/trailing prose around the JSON object.
func ParseDecision(content, rawInput string) Decision {
	trimmed := strings.TrimSpace(content)

	payload, ok := parsePayloadFromText(trimmed)
	if !ok {
		if looksLikeJSON(trimmed) {
			return Decision{Kind: DecisionUnknown, Message: RetrySentinel}
		}
		if trimmed != "" {
			return Decision{Kind: DecisionChat, Message: trimmed}
		}
		payload = decisionPayload{Type: "unknown", Message: "AI response was empty"}
	}

	return dispatchPayload(payload, rawInput)
}

func dispatchPayload(payload decisionPayload, rawInput string) Decision {
	kindLower := strings.ToLower(payload.Type)

	switch {
	case kindLower == "action" || (kindLower != "need_input" && (payload.Name != "" || payload.Action != "")):
		name := firstNonEmpty(payload.Name, payload.Action)
		if name == "" {
			return Decision{Kind: DecisionUnknown, Message: "missing action name"}
		}
		params := payload.Params
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		return Decision{
			Kind:       DecisionAction,
			Action:     action.Request{Name: name, Params: params, RawInput: rawInput},
			Confidence: payload.Confidence,
		}

	case kindLower == "need_input":
		prompt := firstNonEmpty(payload.Prompt, payload.Message)
		if prompt == "" {
			prompt = "need more input"
		}
		params := payload.Params
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		return Decision{
			Kind:       DecisionNeedInput,
			Prompt:     prompt,
			NeedAction: firstNonEmpty(payload.Action, payload.Name),
			NeedParams: params,
			Missing:    payload.Missing,
			Confidence: payload.Confidence,
		}

	case kindLower == "plan" || len(payload.Steps) > 0:
		if len(payload.Steps) == 0 {
			msg := payload.Message
			if msg == "" {
				msg = "plan has no steps"
			}
			return Decision{Kind: DecisionUnknown, Message: msg}
		}
		steps := make([]PlanStep, 0, len(payload.Steps))
		for _, sp := range payload.Steps {
			name := firstNonEmpty(sp.Action, sp.Name)
			if name == "" {
				return Decision{Kind: DecisionUnknown, Message: "plan step missing action"}
			}
			params := sp.Params
			if len(params) == 0 {
				params = json.RawMessage(`{}`)
			}
			steps = append(steps, PlanStep{
				ID:               sp.ID,
				Action:           name,
				Params:           params,
				Note:             sp.Note,
				RequiresApproval: sp.RequiresApproval,
			})
		}
		return Decision{
			Kind:        DecisionPlan,
			Steps:       steps,
			PlanMessage: payload.Message,
			Confidence:  payload.Confidence,
		}

	case kindLower == "chat":
		return Decision{Kind: DecisionChat, Message: payload.Message, Confidence: payload.Confidence}

	default:
		msg := payload.Message
		if msg == "" {
			msg = "no plan"
		}
		return Decision{Kind: DecisionUnknown, Message: msg, Confidence: payload.Confidence}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// looksLikeJSON is a loose heuristic for "this reply was probably trying to
// be structured JSON and failed", used to decide between the strict retry
// sentinel and a soft fallback to plain chat.
func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") ||
		strings.Contains(s, `"type"`) ||
		strings.Contains(s, `{"type"`)
}

func parsePayloadFromText(text string) (decisionPayload, bool) {
	sanitized := sanitizeAIOutput(text)

	for _, candidate := range jsonCandidates(sanitized) {
		if payload, ok := tryParsePayload(candidate); ok {
			return payload, true
		}
	}

	if sliced, ok := fallbackJSONSlice(sanitized); ok {
		if payload, ok := tryParsePayload(sliced); ok {
			return payload, true
		}
	}

	return decisionPayload{}, false
}

func tryParsePayload(candidate string) (decisionPayload, bool) {
	var payload decisionPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
		return payload, true
	}
	repaired := stripTrailingCommas(candidate)
	if err := json.Unmarshal([]byte(repaired), &payload); err == nil {
		return payload, true
	}
	return decisionPayload{}, false
}

// sanitizeAIOutput strips <think>...</think> reasoning-trace lines and
// fenced code-block delimiter lines, operating line-by-line and matching on
// substrings (not exact tags) since models vary how they close a think
// block.
func sanitizeAIOutput(text string) string {
	var out []string
	inThink := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.Contains(lower, "<think") {
			inThink = !strings.Contains(lower, "</think")
			continue
		}
		if strings.Contains(lower, "</think") {
			inThink = false
			continue
		}
		if inThink {
			continue
		}
		if strings.HasPrefix(trimmed, "```") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// jsonCandidates scans text for every top-level {...} span, respecting
// quoted-string and escape state, returning them in order of appearance.
func jsonCandidates(text string) []string {
	var candidates []string
	depth := 0
	inString := false
	escaped := false
	start := -1

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					candidates = append(candidates, text[start:i+1])
					start = -1
				}
			}
		}
	}
	return candidates
}

// stripTrailingCommas removes a comma that precedes (ignoring whitespace)
// a closing '}' or ']', respecting quoted-string and escape state.
func stripTrailingCommas(text string) string {
	var b strings.Builder
	runes := []rune(text)
	inString := false
	escaped := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inString {
			b.WriteRune(r)
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		if r == '"' {
			inString = true
			b.WriteRune(r)
			continue
		}
		if r == ',' {
			j := i + 1
			for j < len(runes) && isJSONWhitespace(runes[j]) {
				j++
			}
			if j < len(runes) && (runes[j] == '}' || runes[j] == ']') {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isJSONWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// fallbackJSONSlice returns the whole trimmed string if it already looks
// like a single JSON object, else the first '{' through the last '}'.
func fallbackJSONSlice(text string) (string, bool) {
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text, true
	}
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first < 0 || last < 0 || last < first {
		return "", false
	}
	return text[first : last+1], true
}
