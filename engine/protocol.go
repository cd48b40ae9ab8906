package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bdobrica/robit/llmplanner"
	"github.com/bdobrica/robit/protocol"
	"github.com/bdobrica/robit/roomconfig"
)

// HandleProtocolEvent dispatches a single wire-level Event, routing Message
// bodies through the normal planner cascade and handling the remaining
// control-plane bodies (approvals, scope, config, action listing, ping)
// directly. It returns zero or more reply Events to send back.
func (e *Engine) HandleProtocolEvent(ctx context.Context, evt protocol.Event) []protocol.Event {
	switch body := evt.Body.(type) {
	case *protocol.MessagePayload:
		return e.handleMessageEvent(ctx, body)
	case *protocol.ApprovalDecisionPayload:
		return e.handleApprovalDecisionEvent(ctx, body)
	case *protocol.RoomScopePayload:
		e.scope.Update(*body)
		return nil
	case *protocol.ConfigUpdatePayload:
		e.configStore.Apply(*body)
		return nil
	case *protocol.ActionListRequestPayload:
		return []protocol.Event{protocol.New(&protocol.ActionListResultPayload{Actions: e.actionListJSON()})}
	case *protocol.PingPayload:
		return []protocol.Event{protocol.New(&protocol.PongPayload{InReplyTo: evt.ID})}
	default:
		return nil
	}
}

func (e *Engine) actionListJSON() []json.RawMessage {
	specs := e.registry.ListSpecs()
	out := make([]json.RawMessage, 0, len(specs))
	for _, spec := range specs {
		if raw, err := json.Marshal(spec); err == nil {
			out = append(out, raw)
		}
	}
	return out
}

func (e *Engine) handleMessageEvent(ctx context.Context, body *protocol.MessagePayload) []protocol.Event {
	if !e.scope.Allows(body.WorkspaceID, body.RoomID) {
		return nil
	}
	if !e.markMessageSeen(body.MessageID) {
		return nil
	}

	key := e.conversationKey(body.WorkspaceID, body.RoomID)
	if isContextOnly(body.Metadata) {
		e.conversations.RecordContext(key, metadataRole(body.Metadata), body.Text)
		return nil
	}

	inbound := InboundMessage{
		ID:          body.MessageID,
		Text:        body.Text,
		Sender:      body.SenderID,
		Channel:     body.RoomID,
		WorkspaceID: body.WorkspaceID,
		Metadata:    body.Metadata,
	}
	cfg := e.configStore.EffectiveFor(body.WorkspaceID, body.RoomID)
	outs := e.handleMessageWithConfig(ctx, inbound, cfg)
	return wrapResponses(outs)
}

// isContextOnly reports whether a MessagePayload should only be appended to
// history rather than routed through the planner cascade (metadata.context_only
// == true).
func isContextOnly(metadata json.RawMessage) bool {
	if len(metadata) == 0 {
		return false
	}
	return gjson.GetBytes(metadata, "context_only").Bool()
}

// metadataRole extracts metadata.role ("assistant" or "user", defaulting to
// user) for a context-only history append.
func metadataRole(metadata json.RawMessage) llmplanner.ChatRole {
	if len(metadata) == 0 {
		return llmplanner.RoleUser
	}
	if strings.EqualFold(gjson.GetBytes(metadata, "role").String(), "assistant") {
		return llmplanner.RoleAssistant
	}
	return llmplanner.RoleUser
}

func (e *Engine) handleApprovalDecisionEvent(ctx context.Context, body *protocol.ApprovalDecisionPayload) []protocol.Event {
	msg := InboundMessage{
		ID:          body.InReplyTo,
		Text:        body.Decision,
		Sender:      body.SenderID,
		Channel:     body.RoomID,
		WorkspaceID: body.WorkspaceID,
	}
	roomCfg := e.configStore.EffectiveFor(body.WorkspaceID, body.RoomID)
	return wrapResponses(e.handleApprovalDecision(ctx, msg, body, roomCfg))
}

// handleApprovalDecision resolves an explicit, protocol-addressed approval
// id rather than parsing a chat reply.
func (e *Engine) handleApprovalDecision(ctx context.Context, msg InboundMessage, payload *protocol.ApprovalDecisionPayload, roomCfg roomconfig.RoomConfig) []OutboundMessage {
	// The spec treats "approve_all" and "approve-all" as identical; an
	// unrecognized decision string is dropped rather than surfaced as an
	// error (logged for visibility), leaving the approval untouched.
	var approveAll, approved bool
	switch strings.ToLower(payload.Decision) {
	case "approve":
		approved = true
	case "approve_all", "approve-all":
		approved, approveAll = true, true
	case "deny":
		approved = false
	default:
		e.log.Warn("protocol: unknown approval decision", "decision", payload.Decision)
		return nil
	}

	pending, found := e.approvals.Take(payload.ApprovalID)
	if !found {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("approval %s not found or has expired", payload.ApprovalID), "error", nil)}
	}

	if pending.PlanID != "" {
		return e.resumePlan(ctx, pending.PlanID, pending.Request, approved, approveAll)
	}
	if !approved {
		return []OutboundMessage{e.reply(msg, fmt.Sprintf("denied: %s", pending.Request.Name), "denied", nil)}
	}
	return e.executeAction(ctx, pending.Request, msg, pending.Config)
}

// wrapResponses projects engine OutboundMessages into protocol Events
// carrying a ResponsePayload body, matching the wire shape an adapter
// expects to receive back.
func wrapResponses(outs []OutboundMessage) []protocol.Event {
	events := make([]protocol.Event, 0, len(outs))
	for _, out := range outs {
		events = append(events, protocol.New(&protocol.ResponsePayload{
			InReplyTo:   out.InReplyTo,
			RoomID:      out.Channel,
			WorkspaceID: out.WorkspaceID,
			Kind:        out.Kind,
			Text:        out.Text,
			Metadata:    out.Data,
		}))
	}
	return events
}
