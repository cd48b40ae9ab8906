package engine

import (
	"fmt"
	"strings"
)

// handleControl answers a small set of built-in commands before any planner
// gets a look at the message: help, actions, backend, and the dry-run
// toggle. ok is false for anything else, letting the caller fall through.
func (e *Engine) handleControl(msg InboundMessage) (OutboundMessage, bool) {
	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)

	switch lower {
	case "help":
		return e.reply(msg, e.helpText(), "help", nil), true
	case "actions":
		return e.reply(msg, e.actionsText(), "actions", nil), true
	case "backend", "model", "ai":
		return e.reply(msg, e.backendText(), "backend", nil), true
	case "dry-run on":
		e.SetDryRunDefault(true)
		return e.reply(msg, "dry-run is now on: actions will report what they would do without doing it", "dry_run", nil), true
	case "dry-run off":
		e.SetDryRunDefault(false)
		return e.reply(msg, "dry-run is now off: approved actions will execute for real", "dry_run", nil), true
	}

	return OutboundMessage{}, false
}

func (e *Engine) helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	b.WriteString("  help             - show this message\n")
	b.WriteString("  actions          - list available actions\n")
	b.WriteString("  backend          - show the active planner backend\n")
	b.WriteString("  dry-run on/off   - toggle whether actions actually run\n")
	b.WriteString("  approve|deny [id] - resolve a pending approval\n")
	b.WriteString("  action:<name> key=value ... - invoke an action explicitly\n")
	return b.String()
}

func (e *Engine) actionsText() string {
	specs := e.registry.ListSpecs()
	if len(specs) == 0 {
		return "no actions are registered"
	}
	var b strings.Builder
	b.WriteString("Available actions:\n")
	for _, spec := range specs {
		fmt.Fprintf(&b, "  - %s (%s risk): %s\n", spec.Name, spec.Risk, spec.Description)
	}
	return b.String()
}

func (e *Engine) backendText() string {
	e.mu.Lock()
	label := e.aiBackendLabel
	hasBackend := e.aiBackend != nil
	e.mu.Unlock()
	if !hasBackend {
		return "backend: rule-based planner (no AI backend configured)"
	}
	if label == "" {
		return "backend: AI planner"
	}
	return fmt.Sprintf("backend: AI planner (%s)", label)
}
