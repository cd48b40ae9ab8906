package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bdobrica/robit/llmplanner"
)

// statusKeywords triggers the system-status heuristic plan (§4.7): when the
// user's text contains any of these (English or Chinese), the engine builds
// a small plan of shell probes itself rather than relying on the planner to
// have proposed one.
var statusKeywords = []string{
	"系统状态", "status", "cpu", "内存", "memory", "磁盘", "disk",
	"进程", "process", "网络", "network", "load", "负载", "状态",
}

// statusProbes are the well-known shell commands the heuristic plan runs,
// one shell.run step each. The plan summariser below does not match
// against them.
var statusProbes = []string{"uptime", "vm_stat", "df -h", "ps aux | head -20", "ifconfig"}

// matchesSystemStatus reports whether text looks like a system-status
// request under the fixed keyword list.
func matchesSystemStatus(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range statusKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) || strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// heuristicSystemStatusPlan builds the fallback plan the engine runs itself
// when the LLM planner could not be coaxed into valid JSON for what looks
// like a system-status request: one approval-gated shell.run step per probe.
func heuristicSystemStatusPlan(rawInput string) []llmplanner.PlanStep {
	steps := make([]llmplanner.PlanStep, 0, len(statusProbes))
	approve := true
	for _, cmd := range statusProbes {
		params, _ := json.Marshal(map[string]string{"command": cmd})
		steps = append(steps, llmplanner.PlanStep{
			Action:           "shell.run",
			Params:           params,
			RequiresApproval: &approve,
		})
	}
	return steps
}

// isStatusProbeStep reports whether stepAction is shell.run. Only the action
// name is checked; the step's command is not compared with statusProbes, so
// any shell.run step counts as a status probe.
func isStatusProbeStep(stepAction string) bool {
	return stepAction == "shell.run"
}

// summarizePlan produces the final plan_completed/plan_stopped body: a
// specialised system-status summary when every completed step was a
// shell.run step, otherwise an LLM chat summary when a backend is configured
// and returns a non-empty chat reply, otherwise a fallback listing each step.
func (e *Engine) summarizePlan(ctx context.Context, pc *planContext) string {
	if len(pc.completed) == 0 {
		return "Plan had no steps to run."
	}

	if allStatusProbes(pc.completed) {
		return summarizeSystemStatus(pc.completed)
	}

	e.mu.Lock()
	backend := e.aiBackend
	e.mu.Unlock()
	if backend != nil {
		if summary, ok := e.llmSummarize(ctx, pc); ok {
			return summary
		}
	}

	return fallbackPlanSummary(pc.completed)
}

func allStatusProbes(results []stepResult) bool {
	for _, r := range results {
		if !isStatusProbeStep(r.action) {
			return false
		}
	}
	return true
}

func summarizeSystemStatus(results []stepResult) string {
	var b strings.Builder
	b.WriteString("System status:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "  - %s\n", r.summary)
	}
	return strings.TrimSpace(b.String())
}

func fallbackPlanSummary(results []stepResult) string {
	var b strings.Builder
	b.WriteString("Plan completed:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, r.summary)
	}
	return strings.TrimSpace(b.String())
}

// llmSummarize asks the configured LLM backend to turn the plan's raw step
// results into a short chat-style summary. It treats any non-Chat decision,
// any error, or an empty message as "can't summarize", falling back to the
// caller's next option.
func (e *Engine) llmSummarize(ctx context.Context, pc *planContext) (string, bool) {
	e.mu.Lock()
	backend := e.aiBackend
	e.mu.Unlock()
	if backend == nil {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Summarize the following completed plan steps for the user in one short paragraph:\n")
	for _, r := range pc.completed {
		fmt.Fprintf(&b, "- %s: %s\n", r.action, r.summary)
	}

	decision, err := backend.PlanWithHistory(ctx, b.String(), nil, nil)
	if err != nil || decision.Kind != llmplanner.DecisionChat {
		return "", false
	}
	text := strings.TrimSpace(decision.Message)
	if text == "" {
		return "", false
	}
	return text, true
}
