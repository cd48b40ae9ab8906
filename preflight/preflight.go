// Package preflight runs a side-effect-free check over an action request
// before it is allowed to execute: capability gating against an
// allow/deny list, and path-root confinement for any parameter that looks
// like a filesystem path.
package preflight

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/match"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/riskpolicy"
)

// Config controls the preflight engine's behaviour. The zero value is not
// useful on its own; use DefaultConfig.
type Config struct {
	Enabled            bool
	Strict             bool
	AllowedCapabilities []string
	DeniedCapabilities  []string
	BlockedRoots        []string
	EnforcePolicyRoots  bool
	PathKeys            []string
}

// DefaultConfig matches the preflight defaults an action handler can expect
// when no explicit configuration is supplied: enabled, strict, no
// allow/deny lists, policy-root enforcement on, and the standard set of
// parameter keys whose string values are treated as filesystem paths.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		Strict:             true,
		AllowedCapabilities: nil,
		DeniedCapabilities:  nil,
		BlockedRoots:        nil,
		EnforcePolicyRoots:  true,
		PathKeys: []string{
			"path", "dir", "directory", "cwd", "file",
			"target", "src", "dst", "source", "destination",
		},
	}
}

// Report is the result of one Check call.
type Report struct {
	Action           string
	Risk             action.RiskLevel
	RequiresApproval bool
	Allowed          bool
	Reasons          []string
	Capabilities     []string
	Paths            []string
}

// Summary renders a one-line human summary of the report.
func (r Report) Summary() string {
	if r.Allowed {
		return "ok"
	}
	if len(r.Reasons) == 0 {
		return "blocked"
	}
	return "blocked: " + strings.Join(r.Reasons, "; ")
}

// Engine evaluates a Config against a single action request.
type Engine struct {
	Config Config
}

// New returns an Engine with the given config.
func New(cfg Config) *Engine {
	return &Engine{Config: cfg}
}

// Check evaluates spec/params/ctx against the engine's Config, collecting
// every capability and path violation rather than stopping at the first.
func (e *Engine) Check(spec action.Spec, params json.RawMessage, ctx action.Context) Report {
	report := Report{
		Action:           spec.Name,
		Risk:             spec.Risk,
		RequiresApproval: spec.RequiresApproval,
		Capabilities:     spec.Capabilities,
	}

	if !e.Config.Enabled {
		report.Allowed = true
		return report
	}

	allowed := toLowerSet(e.Config.AllowedCapabilities)
	denied := toLowerSet(e.Config.DeniedCapabilities)
	for _, cap := range spec.Capabilities {
		lower := strings.ToLower(cap)
		if denied[lower] {
			report.Reasons = append(report.Reasons, fmt.Sprintf("capability denied: %s", cap))
			continue
		}
		if len(allowed) > 0 && !allowed[lower] {
			report.Reasons = append(report.Reasons, fmt.Sprintf("capability not allowed: %s", cap))
		}
	}

	pathKeys := e.Config.PathKeys
	if len(pathKeys) == 0 {
		pathKeys = DefaultConfig().PathKeys
	}
	paths := collectPaths(params, pathKeys)
	for _, raw := range paths {
		normalized := riskpolicy.CleanPath(riskpolicy.ExpandTilde(raw))
		report.Paths = append(report.Paths, normalized)

		for _, blocked := range e.Config.BlockedRoots {
			blockedNorm := riskpolicy.CleanPath(riskpolicy.ExpandTilde(blocked))
			if isUnder(normalized, blockedNorm) {
				report.Reasons = append(report.Reasons, fmt.Sprintf("path blocked by policy: %s", normalized))
			}
		}

		if e.Config.EnforcePolicyRoots {
			if err := ctx.Policy.CheckPathAllowed(normalized); err != nil {
				report.Reasons = append(report.Reasons, fmt.Sprintf("path not allowed: %s", err))
			}
		}
	}

	report.Allowed = len(report.Reasons) == 0
	return report
}

func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = true
	}
	return set
}

func isUnder(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+"/") || match.Match(path, root+"/*")
}

// collectPaths walks params looking for string values under a key that
// case-insensitively matches one of pathKeys, recursing through arrays and
// objects while tracking the member key seen most recently (matching
// original engine semantics where an array inherits its parent key).
func collectPaths(params json.RawMessage, pathKeys []string) []string {
	if len(params) == 0 {
		return nil
	}
	keySet := make(map[string]bool, len(pathKeys))
	for _, k := range pathKeys {
		keySet[strings.ToLower(k)] = true
	}
	var out []string
	result := gjson.ParseBytes(params)
	collectPathsInner(result, "", keySet, &out)
	return out
}

func collectPathsInner(value gjson.Result, currentKey string, keySet map[string]bool, out *[]string) {
	switch {
	case value.IsObject():
		value.ForEach(func(key, val gjson.Result) bool {
			collectPathsInner(val, key.String(), keySet, out)
			return true
		})
	case value.IsArray():
		value.ForEach(func(_, val gjson.Result) bool {
			collectPathsInner(val, currentKey, keySet, out)
			return true
		})
	case value.Type == gjson.String:
		if keySet[strings.ToLower(currentKey)] {
			*out = append(*out, value.String())
		}
	}
}
