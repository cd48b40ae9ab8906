// Package riskpolicy holds the path-safety and risk-gating rules shared by
// every action: which filesystem roots an action may touch, and which risk
// levels require a human approval before they run.
package riskpolicy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bdobrica/robit/action"
)

// Policy bounds what an action is allowed to touch on disk and which risk
// levels require approval by default (a room's RiskPolicy override, if any,
// takes precedence — see roomconfig).
type Policy struct {
	AllowedRoots     []string
	ApprovalRisks    []action.RiskLevel
}

// DefaultWithHome returns a Policy scoped to the current working directory
// and the user's home directory, requiring approval for medium and high risk
// actions.
func DefaultWithHome() (Policy, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Policy{}, fmt.Errorf("riskpolicy: getwd: %w", err)
	}
	roots := []string{cwd}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		roots = append(roots, home)
	}
	return Policy{
		AllowedRoots:  roots,
		ApprovalRisks: []action.RiskLevel{action.RiskMedium, action.RiskHigh},
	}, nil
}

// RequiresApproval reports whether an action of the given risk should pause
// for approval. An explicit per-action requirement always wins; otherwise it
// checks membership in ApprovalRisks.
func (p Policy) RequiresApproval(risk action.RiskLevel, explicit bool) bool {
	if explicit {
		return true
	}
	for _, lvl := range p.ApprovalRisks {
		if lvl == risk {
			return true
		}
	}
	return false
}

// CheckPathAllowed verifies that path, once resolved, falls under one of the
// policy's allowed roots. Both path and each root are resolved the same way
// CleanPath resolves them: canonicalized if they exist on disk, used
// literally otherwise.
func (p Policy) CheckPathAllowed(path string) error {
	canonical := CleanPath(path)
	for _, root := range p.AllowedRoots {
		rootCanonical := CleanPath(root)
		if isUnder(canonical, rootCanonical) {
			return nil
		}
	}
	return fmt.Errorf("riskpolicy: path not allowed: %s", canonical)
}

// ExpandTilde expands a leading "~" or "~/..." using $HOME. Any other form
// (e.g. "~user") is returned unchanged — this mirrors the original engine's
// narrow tilde handling rather than a full shell-style expansion.
func ExpandTilde(input string) string {
	if input == "~" {
		if home := os.Getenv("HOME"); home != "" {
			return home
		}
		return input
	}
	if strings.HasPrefix(input, "~/") {
		if home := os.Getenv("HOME"); home != "" {
			return filepath.Join(home, input[2:])
		}
	}
	return input
}

// CleanPath resolves symlinks and makes path absolute when it exists on
// disk; when it does not exist, it is returned unchanged. This intentionally
// does not perform lexical-only cleaning (filepath.Clean) for a
// non-existent path, matching the canonicalize-or-passthrough semantics this
// policy is grounded on.
func CleanPath(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		if abs, err := filepath.Abs(resolved); err == nil {
			return abs
		}
		return resolved
	}
	return path
}

// isUnder reports whether path is equal to or nested under root, comparing
// cleaned absolute forms by string prefix — no attempt is made to prevent
// "/roots-evil" from matching root "/root" beyond requiring a path separator
// (or exact equality) at the boundary.
func isUnder(path, root string) bool {
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	if !strings.HasSuffix(root, sep) {
		root += sep
	}
	return strings.HasPrefix(path, root)
}
