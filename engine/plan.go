package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/robit/action"
	"github.com/bdobrica/robit/llmplanner"
	"github.com/bdobrica/robit/roomconfig"
)

// planContext tracks a multi-step plan that is being executed sequentially.
// It is parked in Engine.plans whenever a step pauses for approval, keyed by
// plan id, and resumed once that step's approval resolves.
type planContext struct {
	id          string
	steps       []llmplanner.PlanStep
	totalSteps  int
	completed   []stepResult
	message     string
	msg         InboundMessage
	roomCfg     roomconfig.RoomConfig
	autoApprove bool
}

// stepResult is one finished plan step's action name and outcome summary,
// kept so the final plan summary can be built without re-running anything.
type stepResult struct {
	action  string
	summary string
}

func (e *Engine) nextPlanID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.planCounter
	e.planCounter++
	return fmt.Sprintf("plan-%d", id)
}

// startPlan begins executing a Decision's steps in order, pausing at the
// first one that needs approval.
func (e *Engine) startPlan(ctx context.Context, msg InboundMessage, decision llmplanner.Decision, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	return e.runPlan(ctx, msg, decision.Steps, decision.PlanMessage, roomCfg)
}

// runPlan is the shared entry point for both an LLM-proposed Decision.Plan
// and the engine's own heuristic system-status plan (§4.7).
func (e *Engine) runPlan(ctx context.Context, msg InboundMessage, steps []llmplanner.PlanStep, message string, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	pc := &planContext{
		id:         e.nextPlanID(),
		steps:      steps,
		totalSteps: len(steps),
		message:    message,
		msg:        msg,
		roomCfg:    roomCfg,
	}
	return e.advancePlan(ctx, pc)
}

// advancePlan runs pc's remaining steps until one pauses for approval, one
// fails outright, or all of them finish, batching every completed step's
// summary into a single final reply rather than replying once per step.
func (e *Engine) advancePlan(ctx context.Context, pc *planContext) []OutboundMessage {
	for len(pc.steps) > 0 {
		step := pc.steps[0]
		pc.steps = pc.steps[1:]
		stepNum := len(pc.completed) + 1

		req := action.Request{Name: step.Action, Params: step.Params, RawInput: pc.msg.Text}

		if pc.autoApprove {
			msgs := e.executeAction(ctx, req, pc.msg, pc.roomCfg)
			if !e.recordStepResult(pc, step, msgs) {
				return []OutboundMessage{e.reply(pc.msg, fmt.Sprintf("Plan stopped at step %d: %s", stepNum, msgs[0].Text), "plan_stopped", nil)}
			}
			continue
		}

		msgs := e.handleActionRequestForPlan(ctx, pc.msg, req, pc.roomCfg, pc.id, step.RequiresApproval)
		if len(msgs) == 0 {
			continue
		}

		switch msgs[0].Kind {
		case "approval_request":
			e.mu.Lock()
			e.plans[pc.id] = pc
			e.mu.Unlock()
			msgs[0].Text = fmt.Sprintf("%s\n计划: %s | 步骤: %d/%d", msgs[0].Text, pc.id, stepNum, pc.totalSteps)
			return msgs
		case "error":
			return []OutboundMessage{e.reply(pc.msg, fmt.Sprintf("Plan stopped at step %d: %s", stepNum, msgs[0].Text), "plan_stopped", nil)}
		default:
			e.recordStepResult(pc, step, msgs)
		}
	}
	return []OutboundMessage{e.planCompletedReply(ctx, pc)}
}

// recordStepResult appends step's outcome to pc.completed. It reports false
// (and records nothing) when msgs represents an execution error, so the
// caller can stop the plan early.
func (e *Engine) recordStepResult(pc *planContext, step llmplanner.PlanStep, msgs []OutboundMessage) bool {
	if len(msgs) == 0 {
		return true
	}
	if msgs[0].Kind == "error" {
		return false
	}
	summary := msgs[0].Text
	if step.Note != "" {
		summary = fmt.Sprintf("%s (%s)", summary, step.Note)
	}
	pc.completed = append(pc.completed, stepResult{action: step.Action, summary: summary})
	return true
}

// resumePlan is called once the approval gating a plan's current step has
// been decided. On approval it executes the step and continues; on denial
// it abandons the remaining steps. autoApprove, when true (the user replied
// "approve-all"), is sticky for the rest of this plan: every remaining step
// executes without pausing for approval again, per §9's approval↔plan
// coupling.
func (e *Engine) resumePlan(ctx context.Context, planID string, approvedRequest action.Request, approved, autoApprove bool) []OutboundMessage {
	e.mu.Lock()
	pc, ok := e.plans[planID]
	if ok {
		delete(e.plans, planID)
	}
	e.mu.Unlock()
	if !ok {
		return []OutboundMessage{e.reply(InboundMessage{}, "that plan is no longer active", "plan_stopped", nil)}
	}

	if !approved {
		return []OutboundMessage{e.reply(pc.msg, fmt.Sprintf("Plan stopped: step %q denied", approvedRequest.Name), "plan_stopped", nil)}
	}
	if autoApprove {
		pc.autoApprove = true
	}

	msgs := e.executeAction(ctx, approvedRequest, pc.msg, pc.roomCfg)
	if len(msgs) > 0 {
		summary := msgs[0].Text
		pc.completed = append(pc.completed, stepResult{action: approvedRequest.Name, summary: summary})
	}
	return e.advancePlan(ctx, pc)
}

func (e *Engine) planCompletedReply(ctx context.Context, pc *planContext) OutboundMessage {
	var b strings.Builder
	if pc.message != "" {
		b.WriteString(pc.message)
		b.WriteString("\n")
	}
	b.WriteString(e.summarizePlan(ctx, pc))
	return e.reply(pc.msg, strings.TrimSpace(b.String()), "plan_completed", nil)
}
