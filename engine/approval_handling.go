package engine

import (
	"context"
	"fmt"

	"github.com/bdobrica/robit/approval"
	"github.com/bdobrica/robit/roomconfig"
)

// handleApproval tries to parse msg as an approve/deny reply and, if it is
// one, resolves the matching pending entry. ok is false for any message
// that isn't an approval command, letting the caller fall through to the
// planner cascade.
func (e *Engine) handleApproval(ctx context.Context, msg InboundMessage, roomCfg roomconfig.RoomConfig) ([]OutboundMessage, bool) {
	decision, id, ok := approval.ParseCommand(msg.Text)
	if !ok {
		return nil, false
	}

	if id == "" {
		latest, found := e.approvals.LatestForSender(msg.Sender)
		if !found {
			return []OutboundMessage{e.reply(msg, "you have no pending approval to resolve", "error", nil)}, true
		}
		id = latest
	}

	pending, found := e.approvals.Take(id)
	if !found {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("approval %s not found or has expired", id), "error", nil)}, true
	}

	// A bare affirmation ("yes"/"好的"/...) is approve for a standalone
	// action but approve-all once we know it belongs to a plan.
	if decision == approval.DecisionAffirm {
		if pending.PlanID != "" {
			decision = approval.DecisionApproveAll
		} else {
			decision = approval.DecisionApprove
		}
	}

	if pending.PlanID != "" {
		autoApprove := decision == approval.DecisionApproveAll
		approved := decision == approval.DecisionApprove || decision == approval.DecisionApproveAll
		return e.resumePlan(ctx, pending.PlanID, pending.Request, approved, autoApprove), true
	}

	if decision == approval.DecisionDeny {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("denied: %s", pending.Request.Name), "denied", nil)}, true
	}

	return e.executeAction(ctx, pending.Request, msg, pending.Config), true
}
