// Package ruleplanner implements the deterministic fallback planner: a
// small grammar of "action:<name> key=value ..." commands plus a couple of
// hard-coded natural-language intents, used when no LLM planner is wired in
// or when the LLM planner call returns an error.
package ruleplanner

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/bdobrica/robit/action"
)

// Response is the rule planner's tagged-union decision.
type Response struct {
	Kind    ResponseKind
	Action  action.Request
	Prompt  string
	Message string
}

// ResponseKind discriminates Response.
type ResponseKind int

const (
	ResponseAction ResponseKind = iota
	ResponseNeedInput
	ResponseUnknown
)

// Planner is the stateless rule-based planner.
type Planner struct{}

// New returns a ready-to-use Planner.
func New() *Planner { return &Planner{} }

// Plan evaluates input against the fixed grammar: an explicit
// "action:name ..." / "action name ..." command first, then a couple of
// hard-coded natural-language intents, else Unknown.
func (p *Planner) Plan(input string) Response {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Response{Kind: ResponseUnknown, Message: "empty input"}
	}

	if req, ok := parseExplicitAction(trimmed); ok {
		return Response{Kind: ResponseAction, Action: req}
	}

	if matchesDesktopOrganize(trimmed) {
		return Response{
			Kind: ResponseAction,
			Action: action.Request{
				Name:     "fs.organize_directory",
				Params:   json.RawMessage(`{"path":"~/Desktop","mode":"extension"}`),
				RawInput: trimmed,
			},
		}
	}

	return Response{Kind: ResponseUnknown, Message: "no rule matched"}
}

func parseExplicitAction(input string) (action.Request, bool) {
	trimmed := strings.TrimSpace(input)
	var rest string
	switch {
	case strings.HasPrefix(trimmed, "action:"):
		rest = strings.TrimSpace(strings.TrimPrefix(trimmed, "action:"))
	case strings.HasPrefix(trimmed, "action "):
		rest = strings.TrimSpace(strings.TrimPrefix(trimmed, "action "))
	default:
		return action.Request{}, false
	}
	if rest == "" {
		return action.Request{}, false
	}

	name, paramsRaw, _ := splitOnFirstWhitespace(rest)
	name = strings.TrimSpace(name)
	paramsRaw = strings.TrimSpace(paramsRaw)

	var params json.RawMessage
	switch {
	case paramsRaw == "":
		params = json.RawMessage(`{}`)
	case strings.HasPrefix(paramsRaw, "{"):
		var probe map[string]any
		if err := json.Unmarshal([]byte(paramsRaw), &probe); err != nil {
			params = json.RawMessage(`{}`)
		} else {
			params = json.RawMessage(paramsRaw)
		}
	default:
		params = parseKVParams(paramsRaw)
	}

	return action.Request{Name: name, Params: params, RawInput: trimmed}, true
}

// splitOnFirstWhitespace splits s into the text before and after the first
// whitespace rune, mirroring Rust's splitn(2, char::is_whitespace).
func splitOnFirstWhitespace(s string) (head, tail string, found bool) {
	idx := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if idx < 0 {
		return s, "", false
	}
	return s[:idx], s[idx+1:], true
}

func matchesDesktopOrganize(input string) bool {
	lower := strings.ToLower(input)
	return strings.Contains(input, "整理桌面") ||
		(strings.Contains(lower, "organize") && strings.Contains(lower, "desktop"))
}

func parseKVParams(input string) json.RawMessage {
	fields := map[string]any{}
	for _, token := range strings.Fields(input) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			continue
		}
		fields[key] = parseValue(value)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

// parseValue coerces a raw kv-param token into bool/int/float/string,
// stripping any leading and trailing '"' regardless of whether they're
// paired, matching the original planner's asymmetric quote trimming.
func parseValue(raw string) any {
	trimmed := strings.Trim(raw, `"`)
	switch strings.ToLower(trimmed) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return trimmed
}
